package consumers

import (
	"strings"
	"testing"

	"github.com/qugate/gate-node/contract"
	"github.com/qugate/gate-node/executor"
	natsClient "github.com/qugate/gate-node/messaging/nats"
)

func TestCallFromEnvelope(t *testing.T) {
	var caller contract.PublicKey
	caller[0] = 0xAB
	payload := contract.MarshalGateID(7)

	env := &natsClient.CallEnvelope{
		CallID:    "c-1",
		Procedure: "SEND",
		Caller:    caller.String(),
		Attached:  500,
		Payload:   natsClient.EncodePayload(payload),
	}

	call, err := CallFromEnvelope(env)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if call.Procedure != executor.ProcSend || call.Caller != caller || call.Attached != 500 {
		t.Errorf("call = %+v", call)
	}
	if id, _ := contract.UnmarshalGateID(call.Payload); id != 7 {
		t.Errorf("payload did not survive the envelope")
	}
}

func TestCallFromEnvelopeRejections(t *testing.T) {
	good := &natsClient.CallEnvelope{
		CallID:    "c-2",
		Procedure: "CLOSE",
		Caller:    strings.Repeat("00", 32),
		Payload:   natsClient.EncodePayload(contract.MarshalGateID(1)),
	}

	t.Run("unknown procedure", func(t *testing.T) {
		env := *good
		env.Procedure = "STEAL"
		if _, err := CallFromEnvelope(&env); err == nil {
			t.Errorf("accepted unknown procedure")
		}
	})
	t.Run("bad caller key", func(t *testing.T) {
		env := *good
		env.Caller = "zz"
		if _, err := CallFromEnvelope(&env); err == nil {
			t.Errorf("accepted malformed caller")
		}
	})
	t.Run("bad payload encoding", func(t *testing.T) {
		env := *good
		env.Payload = "!!not-base64!!"
		if _, err := CallFromEnvelope(&env); err == nil {
			t.Errorf("accepted malformed payload")
		}
	})
}

func TestEventFromReceipt(t *testing.T) {
	cases := []struct {
		name    string
		receipt executor.Receipt
		want    string
	}{
		{"create ok", executor.Receipt{Procedure: executor.ProcCreate, Status: contract.StatusOK}, "GATE_CREATED"},
		{"send ok", executor.Receipt{Procedure: executor.ProcSend, Status: contract.StatusOK}, "GATE_FORWARDED"},
		{"close ok", executor.Receipt{Procedure: executor.ProcClose, Status: contract.StatusOK}, "GATE_CLOSED"},
		{"update ok", executor.Receipt{Procedure: executor.ProcUpdate, Status: contract.StatusOK}, "GATE_UPDATED"},
		{"dust", executor.Receipt{Procedure: executor.ProcSend, Status: contract.StatusDustAmount}, "DUST_BURNED"},
		{"rejected", executor.Receipt{Procedure: executor.ProcSend, Status: contract.StatusGateNotActive}, "GATE_REJECTED"},
		{"malformed payload", executor.Receipt{Procedure: executor.ProcCreate, Status: contract.StatusMalformedPayload}, "GATE_REJECTED"},
		{"epoch end", executor.Receipt{Procedure: executor.ProcEndEpoch, Status: contract.StatusOK}, "EPOCH_END"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := EventFromReceipt(tc.receipt)
			if ev.EventType != tc.want {
				t.Errorf("event type = %s, want %s", ev.EventType, tc.want)
			}
			if ev.StatusCode != int64(tc.receipt.Status) {
				t.Errorf("status code = %d", ev.StatusCode)
			}
		})
	}
}
