package models

// Reason codes returned to gate hardware.
type Reason string

const (
	ReasonValid             Reason = "valid"
	ReasonMissingParameters Reason = "missing_parameters"
	ReasonInvalidJWT        Reason = "invalid_jwt"
	ReasonInvalidClaims     Reason = "invalid_claims"
	ReasonExpired           Reason = "expired"
	ReasonInvalidTicket     Reason = "invalid_ticket"
	ReasonReplay            Reason = "replay"
	ReasonInternalError     Reason = "internal_error"
)

// State is a step of the verification state machine.
type State string

const (
	StateReceived       State = "received"
	StateDecodingToken  State = "decoding_token"
	StateCheckingExpiry State = "checking_expiry"
	StateCheckingSale   State = "checking_sale"
	StateCheckingReplay State = "checking_replay"
	StateAdmitting      State = "admitting"
	StateAdmitted       State = "admitted"
	StateRejected       State = "rejected"
	StateErrored        State = "errored"
)

type VerifyRequest struct {
	JWT          string `json:"jwt"`
	GateID       string `json:"gateId"`
	DeviceID     string `json:"deviceId"`
	GatekeeperID string `json:"gatekeeperId,omitempty"`
}

// VerifyResponse is the wire shape returned to the gate.
type VerifyResponse struct {
	OK         bool   `json:"ok"`
	Reason     Reason `json:"reason"`
	TicketID   string `json:"ticketId,omitempty"`
	MatchID    string `json:"matchId,omitempty"`
	SeatNumber string `json:"seatNumber,omitempty"`
	Message    string `json:"message"`
}

// VerifyResult is the terminal state of one verification.
type VerifyResult struct {
	State    State
	Response VerifyResponse
}

func (r VerifyResult) Admitted() bool {
	return r.State == StateAdmitted
}
