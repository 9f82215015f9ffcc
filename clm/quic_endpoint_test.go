package clm

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fake connection shapes exercising the reflective probing. Each exposes a
// different slice of the plausible surface.

type rotMgr struct {
	calls int
	err   error
}

func (m *rotMgr) Rotate() error { m.calls++; return m.err }

type issueMgr struct {
	id  []byte
	err error
}

func (m *issueMgr) IssueConnectionID() ([]byte, error) { return m.id, m.err }

type connWithRotMgr struct{ mgr *rotMgr }

func (c *connWithRotMgr) ConnIDManager() *rotMgr { return c.mgr }

type connWithIssueMgr struct{ mgr *issueMgr }

func (c *connWithIssueMgr) ConnectionIDManager() *issueMgr { return c.mgr }

type connWithNilMgr struct{}

func (c *connWithNilMgr) ConnIDManager() *rotMgr { return nil }

type connDirect struct {
	calls int
	err   error
}

func (c *connDirect) ChangeConnectionID() error { c.calls++; return c.err }

type connDiag struct{}

func (c *connDiag) LocalConnectionID() []byte { return []byte{0xde, 0xad, 0xbe, 0xef} }
func (c *connDiag) LocalAddr() net.Addr       { return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242} }
func (c *connDiag) RemoteAddr() net.Addr      { return &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 5555} }

type bareConn struct{}

func TestQuicEndpointDiscover(t *testing.T) {
	ep := NewQuicEndpoint(&connWithRotMgr{mgr: &rotMgr{}})
	assert.Equal(t, []string{"ConnIDManager"}, ep.Discover())

	assert.Empty(t, NewQuicEndpoint(&bareConn{}).Discover())
	assert.Empty(t, NewQuicEndpoint(nil).Discover())
}

func TestQuicEndpointTryRotate(t *testing.T) {
	mgr := &rotMgr{}
	ep := NewQuicEndpoint(&connWithRotMgr{mgr: mgr})

	res := ep.TryRotate()
	require.True(t, res.Found)
	assert.Equal(t, "ConnIDManager.Rotate()", res.Name)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, mgr.calls)
}

func TestQuicEndpointTryRotateError(t *testing.T) {
	mgr := &rotMgr{err: errors.New("not ready")}
	ep := NewQuicEndpoint(&connWithRotMgr{mgr: mgr})

	res := ep.TryRotate()
	require.True(t, res.Found)
	assert.EqualError(t, res.Err, "not ready")
}

func TestQuicEndpointNilManagerSkipped(t *testing.T) {
	ep := NewQuicEndpoint(&connWithNilMgr{})
	assert.Equal(t, []string{"ConnIDManager"}, ep.Discover())
	assert.False(t, ep.TryRotate().Found)
	assert.False(t, ep.TryIssue().Found)
}

func TestQuicEndpointTryIssue(t *testing.T) {
	ep := NewQuicEndpoint(&connWithIssueMgr{mgr: &issueMgr{id: []byte{0x0a, 0x0b}}})

	assert.False(t, ep.TryRotate().Found)

	res := ep.TryIssue()
	require.True(t, res.Found)
	assert.Equal(t, "ConnectionIDManager.IssueConnectionID()", res.Name)
	assert.Equal(t, "0a0b", res.Issued)
	assert.NoError(t, res.Err)
}

func TestQuicEndpointTryDirectChange(t *testing.T) {
	conn := &connDirect{}
	ep := NewQuicEndpoint(conn)

	res := ep.TryDirectChange()
	require.True(t, res.Found)
	assert.Equal(t, "conn.ChangeConnectionID()", res.Name)
	assert.Equal(t, 1, conn.calls)
}

func TestQuicEndpointDiagnostics(t *testing.T) {
	diag := NewQuicEndpoint(&connDiag{}).Diagnostics()
	assert.Equal(t, "deadbeef", diag["local_connection_id"])
	assert.Equal(t, "127.0.0.1:4242", diag["local_addr"])
	assert.Equal(t, "10.0.0.9:5555", diag["remote_addr"])

	assert.Empty(t, NewQuicEndpoint(&bareConn{}).Diagnostics())
}

// Full resolver pass over an endpoint with an issue-only surface: the
// committed strategy is the issue call, success tracks its error.
func TestResolverOverIssueOnlyQuicEndpoint(t *testing.T) {
	ep := NewQuicEndpoint(&connWithIssueMgr{mgr: &issueMgr{id: []byte{0xab}}})
	r := &Resolver{}

	ok, detail := r.AttemptRotation(ep)
	assert.True(t, ok)
	assert.Equal(t, "ConnectionIDManager.IssueConnectionID()", detail.Strategy)
	assert.Equal(t, "ab", detail.Issued)
	assert.Equal(t, []string{"ConnectionIDManager"}, detail.Found)
}

// Full resolver pass over a bare connection: no surface anywhere, failure
// with diagnostics attempted.
func TestResolverOverBareQuicEndpoint(t *testing.T) {
	ep := NewQuicEndpoint(&connDiag{}) // diagnostics only, no rotation ops
	r := &Resolver{}

	ok, detail := r.AttemptRotation(ep)
	assert.False(t, ok)
	assert.Empty(t, detail.Strategy)
	assert.Equal(t, []string{}, detail.Found)
	require.NotEmpty(t, detail.Diag)
	assert.Equal(t, "deadbeef", detail.Diag["local_connection_id"])
}
