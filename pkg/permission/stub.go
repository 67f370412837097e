package permission

import "context"

// StubFacade grants every permission. It stands in for the platform-
// specific realization (TCC on macOS, capabilities elsewhere), which is
// declared out of scope for the router itself (spec.md §4.8).
type StubFacade struct{}

func (StubFacade) Check(context.Context, string) (Status, error) {
	return Granted, nil
}

func (StubFacade) Request(context.Context, string) (Status, error) {
	return Granted, nil
}
