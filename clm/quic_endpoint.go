package clm

import (
	"encoding/hex"
	"fmt"
	"net"
	"reflect"
)

// Candidate names probed on the transport connection. The identifier
// management surface of quic-go is not part of its stable public API; it
// may be absent, renamed, or behave differently by version, so the adapter
// discovers what is actually there instead of assuming a contract.
var (
	managerGetters = []string{
		"ConnIDManager",
		"ConnectionIDManager",
		"LocalConnIDManager",
		"CIDManager",
	}
	issueOps  = []string{"IssueConnectionID", "Issue", "New"}
	directOps = []string{"ChangeConnectionID", "RotateConnectionID", "RequestConnectionID"}

	// getter name -> diagnostic key in the event detail.
	diagGetters = map[string]string{
		"LocalConnectionID":               "local_connection_id",
		"OriginalDestinationConnectionID": "original_destination_connection_id",
	}
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// QuicEndpoint adapts an opaque quic-go connection handle to the Endpoint
// capability surface by probing its exported method set by name.
//
// Against current quic-go releases none of the rotation operations exist,
// so attempts resolve to a diagnosable failure; that is the intended
// best-effort outcome, the same as running the original against a
// transport build without the internal manager.
type QuicEndpoint struct {
	conn any
}

// NewQuicEndpoint wraps conn. The handle is treated as read-only except
// for the probed zero-argument operations.
func NewQuicEndpoint(conn any) *QuicEndpoint {
	return &QuicEndpoint{conn: conn}
}

// Discover lists which of the candidate manager attachment points exist on
// the connection.
func (q *QuicEndpoint) Discover() []string {
	found := []string{}
	rv := reflect.ValueOf(q.conn)
	if !rv.IsValid() {
		return found
	}
	for _, name := range managerGetters {
		m := rv.MethodByName(name)
		if m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() >= 1 {
			found = append(found, name)
		}
	}
	return found
}

// TryRotate looks for a zero-argument Rotate operation on any discovered
// manager and calls the first one found.
func (q *QuicEndpoint) TryRotate() Result {
	for _, mgr := range q.managers() {
		if !hasZeroArgMethod(mgr.value, "Rotate") {
			continue
		}
		_, _, err := callZeroArg(mgr.value, "Rotate")
		return Result{Found: true, Name: mgr.name + ".Rotate()", Err: err}
	}
	return Result{}
}

// TryIssue looks for an "issue new identifier" operation on any discovered
// manager, under any of the plausible names, and calls the first one found.
func (q *QuicEndpoint) TryIssue() Result {
	for _, mgr := range q.managers() {
		for _, op := range issueOps {
			if !hasZeroArgMethod(mgr.value, op) {
				continue
			}
			ret, _, err := callZeroArg(mgr.value, op)
			res := Result{Found: true, Name: mgr.name + "." + op + "()", Err: err}
			if err == nil && ret.IsValid() {
				res.Issued = renderValue(ret)
			}
			return res
		}
	}
	return Result{}
}

// TryDirectChange looks for a change operation directly on the connection
// handle and calls the first one found.
func (q *QuicEndpoint) TryDirectChange() Result {
	rv := reflect.ValueOf(q.conn)
	if !rv.IsValid() {
		return Result{}
	}
	for _, op := range directOps {
		if !hasZeroArgMethod(rv, op) {
			continue
		}
		_, _, err := callZeroArg(rv, op)
		return Result{Found: true, Name: "conn." + op + "()", Err: err}
	}
	return Result{}
}

// Diagnostics snapshots identifier getters (hex-encoded) plus the local
// and remote addresses when the handle exposes them.
func (q *QuicEndpoint) Diagnostics() map[string]string {
	diag := map[string]string{}
	rv := reflect.ValueOf(q.conn)
	if !rv.IsValid() {
		return diag
	}
	for getter, key := range diagGetters {
		if !hasZeroArgMethod(rv, getter) {
			continue
		}
		ret, ok, err := callZeroArg(rv, getter)
		if !ok || err != nil || !ret.IsValid() {
			continue
		}
		diag[key] = renderValue(ret)
	}
	type addressed interface {
		LocalAddr() net.Addr
		RemoteAddr() net.Addr
	}
	if a, ok := q.conn.(addressed); ok {
		if la := a.LocalAddr(); la != nil {
			diag["local_addr"] = la.String()
		}
		if ra := a.RemoteAddr(); ra != nil {
			diag["remote_addr"] = ra.String()
		}
	}
	return diag
}

type namedValue struct {
	name  string
	value reflect.Value
}

// managers resolves the discovered attachment points to live manager
// values, skipping getters that return nil.
func (q *QuicEndpoint) managers() []namedValue {
	var out []namedValue
	rv := reflect.ValueOf(q.conn)
	if !rv.IsValid() {
		return out
	}
	for _, name := range managerGetters {
		m := rv.MethodByName(name)
		if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() < 1 {
			continue
		}
		ret := m.Call(nil)[0]
		if isNilValue(ret) {
			continue
		}
		out = append(out, namedValue{name: name, value: ret})
	}
	return out
}

func hasZeroArgMethod(recv reflect.Value, name string) bool {
	if !recv.IsValid() {
		return false
	}
	m := recv.MethodByName(name)
	return m.IsValid() && m.Type().NumIn() == 0
}

// callZeroArg invokes recv.name(). The first non-error return value (if
// any) comes back as ret; a trailing error return is unwrapped into err.
func callZeroArg(recv reflect.Value, name string) (ret reflect.Value, ok bool, err error) {
	m := recv.MethodByName(name)
	if !m.IsValid() || m.Type().NumIn() != 0 {
		return reflect.Value{}, false, nil
	}
	for _, out := range m.Call(nil) {
		if out.Type().Implements(errType) {
			if !out.IsNil() {
				err = out.Interface().(error)
			}
			continue
		}
		if !ret.IsValid() {
			ret = out
		}
	}
	return ret, true, err
}

func isNilValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

// renderValue turns an operation result into log-friendly text: byte
// identifiers become hex, everything else falls back to fmt.
func renderValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if b, ok := valueBytes(v); ok {
		return hex.EncodeToString(b)
	}
	// Types like quic-go's ConnectionID expose Bytes() instead of being
	// raw slices.
	if hasZeroArgMethod(v, "Bytes") {
		if ret, ok, err := callZeroArg(v, "Bytes"); ok && err == nil {
			if b, isBytes := valueBytes(ret); isBytes {
				return hex.EncodeToString(b)
			}
		}
	}
	return fmt.Sprint(v.Interface())
}

func valueBytes(v reflect.Value) ([]byte, bool) {
	switch {
	case v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8:
		return v.Bytes(), true
	case v.Kind() == reflect.Array && v.Type().Elem().Kind() == reflect.Uint8:
		b := make([]byte, v.Len())
		for i := 0; i < v.Len(); i++ {
			b[i] = byte(v.Index(i).Uint())
		}
		return b, true
	}
	return nil, false
}
