package settlement

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nspcc-dev/ntt-ledger/common"
)

// Status is a state of the remote call result.
type Status byte

const (
	// NotYetResolved means the remote call has not produced a result yet.
	NotYetResolved Status = iota
	// Success means the remote call returned a payload.
	Success
	// Failure means the remote call failed.
	Failure
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case NotYetResolved:
		return "pending"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Outcome is a result of the remote call.
type Outcome struct {
	Status Status
	// Payload is a JSON-encoded unused amount returned on success.
	Payload []byte
}

// Succeeded returns successful Outcome with the payload.
func Succeeded(payload []byte) Outcome {
	return Outcome{Status: Success, Payload: payload}
}

// SucceededUnused returns successful Outcome reporting unused amount.
func SucceededUnused(unused uint64) Outcome {
	return Succeeded([]byte(strconv.Quote(strconv.FormatUint(unused, 10))))
}

// Failed returns failed Outcome.
func Failed() Outcome {
	return Outcome{Status: Failure}
}

// Pending returns Outcome of the call which has no result yet.
func Pending() Outcome {
	return Outcome{Status: NotYetResolved}
}

// UsedAmount derives the amount used by the remote side from the call
// outcome:
//   - not yet resolved outcome is a protocol violation;
//   - failure uses nothing;
//   - success carries the unused amount as a decimal JSON string or number,
//     the used amount is amount-unused. Undecodable payloads and unused
//     amounts above amount use nothing.
func UsedAmount(amount uint64, o Outcome) (uint64, error) {
	switch o.Status {
	case Success:
		unused, err := decodeUnused(o.Payload)
		if err != nil || unused > amount {
			return 0, nil
		}
		return amount - unused, nil
	case Failure:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: outcome %s", common.ErrProtocolViolation, o.Status)
	}
}

// decodeUnused accepts a single JSON integer, quoted or not, with nothing
// but whitespace around it.
func decodeUnused(payload []byte) (uint64, error) {
	var n json.Number
	if err := json.Unmarshal(payload, &n); err != nil {
		return 0, err
	}
	return strconv.ParseUint(n.String(), 10, 64)
}
