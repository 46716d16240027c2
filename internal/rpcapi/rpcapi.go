// Package rpcapi exposes the Chamber Supervisor as a local-only
// JSON-RPC surface: one RPC method per operation, registered once with
// net/rpc and served over net/rpc/jsonrpc with one goroutine per
// connection handling requests synchronously, so the control object
// needs no lock beyond what Supervisor already provides.
package rpcapi

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/rs/zerolog"

	"github.com/multiverse-labs/operant/internal/supervisor"
)

// SupervisorControl is the RPC-visible control surface.
type SupervisorControl struct {
	sup *supervisor.Supervisor
	log zerolog.Logger
}

// NewSupervisorControl wraps sup for RPC registration.
func NewSupervisorControl(sup *supervisor.Supervisor, log zerolog.Logger) *SupervisorControl {
	return &SupervisorControl{sup: sup, log: log}
}

// ChamberStatus is the RPC-serializable view of one chamber's state.
type ChamberStatus struct {
	Index      int
	DevicePath string
	Subject    string
	Active     bool
	State      string
	LastError  string
}

// StartArgs names the chamber to start.
type StartArgs struct {
	Index int
}

// Start starts the named chamber.
func (c *SupervisorControl) Start(args *StartArgs, reply *bool) error {
	if err := c.sup.Start(args.Index); err != nil {
		*reply = false
		return err
	}
	*reply = true
	return nil
}

// StopArgs names the chamber to stop and whether the stop is a sleep
// transition rather than a full stop.
type StopArgs struct {
	Index int
	Sleep bool
}

// Stop stops the named chamber.
func (c *SupervisorControl) Stop(args *StopArgs, reply *bool) error {
	if err := c.sup.Stop(args.Index, args.Sleep); err != nil {
		*reply = false
		return err
	}
	*reply = true
	return nil
}

// SetActiveArgs names a chamber and its desired Active flag.
type SetActiveArgs struct {
	Index  int
	Active bool
}

// SetActive toggles whether the named chamber is eligible for Start.
func (c *SupervisorControl) SetActive(args *SetActiveArgs, reply *bool) error {
	if err := c.sup.SetActive(args.Index, args.Active); err != nil {
		*reply = false
		return err
	}
	*reply = true
	return nil
}

// Status reports one chamber's current status.
func (c *SupervisorControl) Status(index *int, reply *ChamberStatus) error {
	ch := c.sup.Chamber(*index)
	if ch == nil {
		return fmt.Errorf("rpcapi: no chamber %d", *index)
	}
	lastErr := ""
	if err := ch.LastError(); err != nil {
		lastErr = err.Error()
	}
	*reply = ChamberStatus{
		Index:      ch.Index,
		DevicePath: ch.DevicePath,
		Subject:    ch.Subject,
		Active:     ch.Active,
		State:      ch.State().String(),
		LastError:  lastErr,
	}
	return nil
}

// ListChambers reports every chamber's status.
func (c *SupervisorControl) ListChambers(dummy *string, reply *[]ChamberStatus) error {
	var out []ChamberStatus
	for _, ch := range c.sup.Chambers() {
		lastErr := ""
		if err := ch.LastError(); err != nil {
			lastErr = err.Error()
		}
		out = append(out, ChamberStatus{
			Index:      ch.Index,
			DevicePath: ch.DevicePath,
			Subject:    ch.Subject,
			Active:     ch.Active,
			State:      ch.State().String(),
			LastError:  lastErr,
		})
	}
	*reply = out
	return nil
}

// Serve registers control and serves JSON-RPC connections on port,
// handling each connection's requests synchronously in its own
// goroutine.
func Serve(control *SupervisorControl, port int, log zerolog.Logger) error {
	server := rpc.NewServer()
	if err := server.Register(control); err != nil {
		return fmt.Errorf("rpcapi: register: %w", err)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("rpcapi: listen: %w", err)
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("rpc accept error")
				return
			}
			log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("new rpc connection")
			go func() {
				codec := jsonrpc.NewServerCodec(conn)
				for {
					if err := server.ServeRequest(codec); err != nil {
						log.Debug().Err(err).Msg("rpc connection closed")
						return
					}
				}
			}()
		}
	}()
	return nil
}
