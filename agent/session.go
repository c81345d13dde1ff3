package agent

import "github.com/perbu/esxiops/gateway"

// Session is the state carried across turns: the conversation transcript and
// the last VM identifier resolved by get_vm_id. Only the Dispatcher mutates it.
type Session struct {
	transcript []gateway.Message
	lastVMID   string
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []gateway.Message {
	return append([]gateway.Message(nil), s.transcript...)
}

// LastVMID returns the most recently resolved VM identifier, or "".
func (s *Session) LastVMID() string {
	return s.lastVMID
}

// recordTurn appends one user entry and one model entry, keeping the
// transcript strictly alternating. Only the reply text is stored.
func (s *Session) recordTurn(userText, reply string) {
	s.transcript = append(s.transcript,
		gateway.Message{Role: gateway.RoleUser, Text: userText},
		gateway.Message{Role: gateway.RoleModel, Text: reply},
	)
}

func (s *Session) setVMID(vmid string) {
	if vmid != "" {
		s.lastVMID = vmid
	}
}
