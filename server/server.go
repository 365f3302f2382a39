// Package server is a websocket shell around rga.Replica: one
// server-side replica per document, JSON ops in, node updates out.
// It is one of the replaceable shells the core knows nothing about.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	rga "github.com/melatron/crdt-rga"
	"github.com/melatron/crdt-rga/lamport"
	"github.com/melatron/crdt-rga/utils"
)

type Options struct {
	// Src is the replica id the server edits under; must not be 0.
	Src    uint64
	Logger utils.Logger

	SnapshotCacheSize int
	SnapshotCacheTTL  time.Duration
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NopLogger{}
	}
	if o.SnapshotCacheSize == 0 {
		o.SnapshotCacheSize = 128
	}
	if o.SnapshotCacheTTL == 0 {
		o.SnapshotCacheTTL = time.Minute
	}
}

type Server struct {
	opts Options
	log  utils.Logger

	docs utils.CMap[string, *rga.Replica]

	// rendered documents keyed by name@fingerprint, so a popular
	// read-only document is rendered once per revision
	cache *expirable.LRU[string, string]

	registry *prometheus.Registry
	upgrader websocket.Upgrader
}

func New(opts Options) (*Server, error) {
	if opts.Src == 0 {
		return nil, rga.ErrZeroReplica
	}
	opts.SetDefaults()
	return &Server{
		opts:     opts,
		log:      opts.Logger,
		cache:    expirable.NewLRU[string, string](opts.SnapshotCacheSize, nil, opts.SnapshotCacheTTL),
		registry: prometheus.NewRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/{doc}", s.handleWS)
	r.HandleFunc("/doc/{doc}", s.handleText).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// Doc returns the replica behind a document, creating it on first use.
func (s *Server) Doc(name string) *rga.Replica {
	if doc, ok := s.docs.Load(name); ok {
		return doc
	}
	fresh, err := rga.NewReplica(rga.Options{Src: s.opts.Src, Logger: s.log})
	if err != nil {
		panic(err) // Src was validated in New
	}
	doc, loaded := s.docs.LoadOrStore(name, fresh)
	if !loaded {
		s.registry.MustRegister(rga.NewReplicaCollector(doc, prometheus.Labels{"doc": name}))
	}
	return doc
}

// ---- websocket protocol ----

type wsOp struct {
	Type  string `json:"type"`
	After string `json:"after,omitempty"`
	ID    string `json:"id,omitempty"`
	Char  string `json:"char,omitempty"`
}

type wsNode struct {
	ID      string `json:"id"`
	Origin  string `json:"origin"`
	Char    string `json:"char"`
	Deleted bool   `json:"deleted"`
}

type wsMsg struct {
	Type    string   `json:"type"`
	Content string   `json:"content,omitempty"`
	Nodes   []wsNode `json:"nodes,omitempty"`
	Node    *wsNode  `json:"node,omitempty"`
	ID      string   `json:"id,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func encodeNode(n rga.Node) wsNode {
	return wsNode{
		ID:      n.ID.String(),
		Origin:  n.Origin.String(),
		Char:    string(n.Char),
		Deleted: n.Deleted,
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["doc"]
	doc := s.Doc(name)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("ws: upgrade failed", "doc", name, "err", err)
		return
	}
	defer conn.Close()

	session := "ws:" + uuid.NewString()
	s.log.Info("ws: session open", "doc", name, "session", session)

	hose := doc.AddHose(session)
	defer doc.RemoveHose(session)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// initial state, then live updates from the hose
	snapshot := wsMsg{Type: "snapshot", Content: doc.String()}
	for _, n := range doc.AllNodes() {
		if !n.Sentinel {
			snapshot.Nodes = append(snapshot.Nodes, encodeNode(n))
		}
	}
	writes := make(chan wsMsg, 64)
	go func() {
		for {
			recs, ferr := hose.Feed(ctx)
			if ferr != nil {
				cancel()
				conn.Close() // unblocks the read loop
				return
			}
			for _, rec := range recs {
				n, perr := rga.ParseNodeRecord(rec)
				if perr != nil {
					continue
				}
				update := encodeNode(n)
				select {
				case writes <- wsMsg{Type: "node", Node: &update}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	go func() {
		for {
			select {
			case msg := <-writes:
				if werr := conn.WriteJSON(msg); werr != nil {
					s.log.Warn("ws: write failed", "session", session, "err", werr)
					cancel()
					conn.Close() // unblocks the read loop
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	writes <- snapshot

	for ctx.Err() == nil {
		var op wsOp
		if err := conn.ReadJSON(&op); err != nil {
			s.log.Info("ws: session closed", "session", session, "err", err)
			return
		}
		if reply, ok := s.applyOp(doc, op); ok {
			select {
			case writes <- reply:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) applyOp(doc *rga.Replica, op wsOp) (wsMsg, bool) {
	switch op.Type {
	case "insert":
		after := doc.SentinelStart()
		if op.After != "" {
			parsed, ok := lamport.TimeFromString(op.After)
			if !ok {
				return wsMsg{Type: "error", Error: "bad anchor id"}, true
			}
			after = parsed
		}
		chars := []rune(op.Char)
		if len(chars) != 1 {
			return wsMsg{Type: "error", Error: "insert takes exactly one character"}, true
		}
		id, err := doc.InsertAfter(after, chars[0])
		if err != nil {
			return wsMsg{Type: "error", Error: err.Error()}, true
		}
		return wsMsg{Type: "ack", ID: id.String()}, true
	case "delete":
		id, ok := lamport.TimeFromString(op.ID)
		if !ok {
			return wsMsg{Type: "error", Error: "bad node id"}, true
		}
		if err := doc.Delete(id); err != nil {
			return wsMsg{Type: "error", Error: err.Error()}, true
		}
		return wsMsg{Type: "ack", ID: op.ID}, true
	default:
		return wsMsg{Type: "error", Error: "unknown op type"}, true
	}
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["doc"]
	doc, ok := s.docs.Load(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	key := name + "@" + strconv.FormatUint(doc.Fingerprint(), 16)
	text, ok := s.cache.Get(key)
	if !ok {
		text = doc.String()
		s.cache.Add(key, text)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}
