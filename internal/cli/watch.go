package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/courtside/internal/federation"
	"github.com/mesh-intelligence/courtside/internal/metrics"
	"github.com/mesh-intelligence/courtside/internal/pubsub"
	"github.com/mesh-intelligence/courtside/internal/rest"
	"github.com/mesh-intelligence/courtside/internal/tablesync"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

// EventSubscribe asks the server to start pushing a topic.
const EventSubscribe = "subscribe"

// syncWriter serialises writes from transport callbacks and the command.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func newWatchCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch <resource>",
		Short: "Follow live changes to a resource",
		Long: `Watch loads a resource, connects to the push channel and prints every
change the server sends until interrupted. The collection is also refreshed
on the configured poll schedule.

Example:
  courtside watch games
  courtside watch players --metrics-addr :9090`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: resourceArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			return a.watch(cmd.Context(), res, metricsAddr, &syncWriter{w: cmd.OutOrStdout()})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func (a *app) watch(ctx context.Context, res federation.Resource, metricsAddr string, out *syncWriter) error {
	recorder := metrics.NewRecorder()
	transport := pubsub.New(a.cfg.WebSocketURL,
		pubsub.WithToken(a.cfg.Token),
		pubsub.WithLogger(a.log),
	)
	defer transport.Disconnect()

	var unsubs []func()
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()
	unsubs = append(unsubs,
		transport.On(res.Topic, func(p types.Payload) { printPush(out, res, p) }),
		transport.On(types.EventConnectionStatus, func(p types.Payload) {
			var s types.ConnectionStatus
			if json.Unmarshal(p, &s) != nil {
				return
			}
			if s.Connected {
				out.printf("~ live updates connected\n")
			} else {
				out.printf("~ live updates disconnected\n")
			}
		}),
		transport.On(types.EventConnectionError, func(p types.Payload) {
			var e types.ConnectionError
			if json.Unmarshal(p, &e) == nil {
				out.printf("~ connection attempt %d failed: %s\n", e.Attempt, e.Error)
			}
		}),
		transport.On(types.EventReconnected, func(types.Payload) {
			a.subscribeTopic(ctx, transport, res.Topic)
		}),
	)

	coll, err := a.collection(res, func(o *tablesync.Options) {
		o.Transport = transport
		o.Topic = res.Topic
		o.PollSpec = a.cfg.PollSpec
		o.Metrics = recorder
	})
	if err != nil {
		return err
	}
	defer coll.Close()

	if metricsAddr != "" {
		stop, err := serveMetrics(metricsAddr, recorder, out)
		if err != nil {
			return userErrorf("metrics listener: %w", err)
		}
		defer stop()
	}

	if err := coll.Start(ctx); err != nil && !errors.Is(err, types.ErrSuperseded) {
		if !coll.Snapshot().Stale {
			return sysErrorf("load %s: %s", res.Name, rest.UserMessage(err))
		}
	}
	// Connected after the initial load so deltas land on fetched data.
	if err := transport.Connect(ctx); err != nil {
		a.notifier.Notify(types.NoticeWarning, "Live updates unavailable: "+err.Error())
	} else {
		a.subscribeTopic(ctx, transport, res.Topic)
	}
	snap := coll.Snapshot()
	note := ""
	if snap.Stale {
		note = " (cached)"
	}
	out.printf("Watching %s: %d records%s. Press Ctrl-C to stop.\n", res.Name, len(snap.Data), note)

	<-ctx.Done()
	snap = coll.Snapshot()
	out.printf("Stopped watching %s: %d records\n", res.Name, len(snap.Data))
	return nil
}

func (a *app) subscribeTopic(ctx context.Context, t *pubsub.Transport, topic string) {
	if err := t.Send(ctx, EventSubscribe, map[string]string{"topic": topic}); err != nil {
		a.log.Warn().Err(err).Str("topic", topic).Msg("subscribe failed")
	}
}

func printPush(out *syncWriter, res federation.Resource, p types.Payload) {
	var msg tablesync.PushMessage
	if err := json.Unmarshal(p, &msg); err != nil {
		return
	}
	subject := ""
	var rec types.Record
	if json.Unmarshal(msg.Data, &rec) == nil && rec != nil {
		subject = rec.ID()
	} else {
		var id any
		if json.Unmarshal(msg.Data, &id) == nil {
			subject = types.IDString(id)
		}
	}
	if subject == "" {
		out.printf("%s %s\n", msg.Type, res.Name)
		return
	}
	out.printf("%s %s %s\n", msg.Type, res.Name, subject)
}

// serveMetrics starts an HTTP server exposing /metrics and returns a
// function that shuts it down.
func serveMetrics(addr string, recorder *metrics.Recorder, out *syncWriter) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	out.printf("Serving metrics on http://%s/metrics\n", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
