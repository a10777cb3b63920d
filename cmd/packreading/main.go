// Command packreading converts between seven daily temperatures and the packed
// decimal form oracle nodes return for a weather request.
//
// Usage:
//
//	go run ./cmd/packreading -- -10 0 5 -20 -2 -1 -6
//	go run ./cmd/packreading -decode 263273278253271272267
//	go run ./cmd/packreading -bias 0 -decode 111222333444555666777
//
// Temperatures are given oldest day last, matching how oracle nodes report
// them: the first argument becomes the most significant group.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
)

func main() {
	bias := flag.Int("bias", domain.DefaultTemperatureBias, "offset added to each temperature before packing")
	decode := flag.String("decode", "", "packed reading to decode instead of packing arguments")
	asJSON := flag.Bool("json", false, "print a fulfillment message body instead of the bare value")
	requestID := flag.String("request-id", "", "request id for -json output")
	flag.Parse()

	codec := domain.ReadingCodec{Bias: *bias}
	if err := run(codec, *decode, flag.Args(), *asJSON, *requestID); err != nil {
		fmt.Fprintln(os.Stderr, "packreading:", err)
		os.Exit(1)
	}
}

func run(codec domain.ReadingCodec, decode string, args []string, asJSON bool, requestID string) error {
	if decode != "" {
		r, err := codec.Decode(decode)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(domain.FulfillmentMessage{RequestID: requestID, RawReading: domain.RawReading{Temperatures: r[:]}})
		}
		fmt.Println(formatReported(r))
		return nil
	}

	r, err := parseReported(args)
	if err != nil {
		return err
	}
	packed, err := codec.Pack(r)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(domain.FulfillmentMessage{RequestID: requestID, RawReading: domain.RawReading{Packed: packed}})
	}
	fmt.Println(packed)
	return nil
}

// parseReported reads seven temperatures in reporting order, most significant
// group first, into a Reading indexed from the least significant group.
func parseReported(args []string) (domain.Reading, error) {
	var r domain.Reading
	if len(args) != domain.ReadingDays {
		return r, fmt.Errorf("want %d temperatures, got %d", domain.ReadingDays, len(args))
	}
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return r, fmt.Errorf("temperature %q: %w", a, err)
		}
		r[domain.ReadingDays-1-i] = v
	}
	return r, nil
}

func formatReported(r domain.Reading) string {
	out := ""
	for i := domain.ReadingDays - 1; i >= 0; i-- {
		if out != "" {
			out += " "
		}
		out += strconv.Itoa(r[i])
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
