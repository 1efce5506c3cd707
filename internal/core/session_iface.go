package core

import "github.com/dkeye/VideoShare/internal/domain"

// MemberSession binds domain.Member and its transport endpoints.
// This is what the session registry stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
	Media() MediaConnection
	UpdateSignal(SignalConnection) MemberSession
	UpdateMedia(MediaConnection) MemberSession
}
