// Package domain models parametric weather hedges: policies, oracle requests,
// packed temperature readings, and the events emitted while settling them.
//
// # Policies
//
// A policy binds a holder to a coverage window, an insured amount, a location
// and a trigger condition. Amounts are decimal values in the fund's currency
// unit (the original deployment used ether). Locations are fixed-point with
// two decimals:
//
//	LatE2 = 1025   →  10.25°
//	LonE2 = -54    →  -0.54°
//
// A policy is immutable after registration except for its accumulated Paid
// amount, which only grows and never exceeds Amount. Once Paid == Amount the
// policy is exhausted and further settlements are no-ops.
//
// # Packed readings
//
// The oracle reports the last seven daily temperatures as a single decimal
// integer made of three-digit groups. Groups are read from the
// least-significant end, so the first reading is the last three digits:
//
//	111222333444555666777  →  [777 666 555 444 333 222 111]
//
// Missing high-order groups are zeros ("5" is [5 0 0 0 0 0 0]). Each group is
// shifted by a deployment-wide bias to allow sub-zero temperatures. The
// default bias is 273, so a group of 263 means -10 °C and 273 means 0 °C:
//
//	263273278253271272267  →  [-6 -1 -2 -20 5 0 -10]
//
// A bias of 0 reads groups verbatim. Values longer than 21 significant digits,
// negative values, and non-numeric input are rejected with
// [ErrMalformedReading]; a corrupt reading is never treated as "no matching
// days".
//
// Structured form: callers that control both ends should send the seven
// temperatures as a JSON array instead (see [RawReading]).
//
// # Trigger conditions
//
//	FROST:   a day counts when its temperature is ≤ the frost threshold
//	DROUGHT: a day counts when its temperature is ≥ the drought threshold
//
// The payout for one fulfillment is matchedDays × DailyRate, capped by the
// policy's remaining insured amount.
package domain
