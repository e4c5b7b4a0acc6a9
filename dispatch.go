package keyturn

import "context"

// Op is the closed set of operations the workflow dispatches over. Anything
// outside it is rejected with [ErrUnknownOperation] instead of falling
// through silently.
type Op uint8

const (
	OpLogin Op = iota + 1
	OpLogout
	OpChangeSecret
)

// String returns the wire name of the operation.
func (o Op) String() string {
	switch o {
	case OpLogin:
		return "login"
	case OpLogout:
		return "logout"
	case OpChangeSecret:
		return "change_secret"
	default:
		return "unknown"
	}
}

// ParseOp maps a wire action name to its [Op]. Unknown names map to the
// zero Op, which Dispatch rejects.
func ParseOp(action string) Op {
	switch action {
	case "login":
		return OpLogin
	case "logout":
		return OpLogout
	case "change_secret":
		return OpChangeSecret
	default:
		return 0
	}
}

// Request is one inbound workflow call. Which fields matter depends on Op:
// Login reads PrincipalID and Secret; Logout reads SessionToken;
// ChangeSecret reads SessionToken, Secret (the old one), NewSecret, and
// ConfirmSecret. Origin applies to all of them.
type Request struct {
	Op            Op
	PrincipalID   string
	Secret        string
	NewSecret     string
	ConfirmSecret string
	SessionToken  string
	Origin        string
}

// Response carries the outcome of a dispatched request. Err holds the
// sentinel chain the individual operation returned.
type Response struct {
	Op           Op
	PrincipalID  string
	SessionToken string
	Err          error
}

// Dispatch routes a [Request] to the matching operation.
func (w *Workflow) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{Op: req.Op}

	switch req.Op {
	case OpLogin:
		result, err := w.Login(ctx, req.PrincipalID, req.Secret, req.Origin)
		if err != nil {
			resp.Err = err
			return resp
		}
		resp.PrincipalID = result.PrincipalID
		resp.SessionToken = result.SessionToken
	case OpLogout:
		resp.Err = w.Logout(ctx, req.SessionToken)
	case OpChangeSecret:
		// Resolve the principal first; a committed rotation invalidates the
		// token, after which the session cannot be read back.
		principalID, _ := w.CurrentPrincipal(ctx, req.SessionToken)
		err := w.ChangeSecret(ctx, req.SessionToken, req.Secret, req.NewSecret, req.ConfirmSecret, req.Origin)
		if err != nil {
			resp.Err = err
			return resp
		}
		resp.PrincipalID = principalID
	default:
		resp.Err = ErrUnknownOperation
	}

	return resp
}
