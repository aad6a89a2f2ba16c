package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/ledgerapi"
	"github.com/cloudx-io/openmarket/market"
)

// Processor runs a ledger request. market.Service implements it.
type Processor interface {
	Process(ctx context.Context, req ledgerapi.LedgerRequest) ledgerapi.LedgerResponse
}

var _ Processor = (*market.Service)(nil)

// Server is the HTTP and WebSocket face of the ledger.
type Server struct {
	processor Processor
	hub       *Hub
	upgrader  websocket.Upgrader
	handler   http.Handler
}

func NewServer(processor Processor, hub *Hub, allowedOrigins []string) *Server {
	s := &Server{
		processor: processor,
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	s.handler = s.middleware(allowedOrigins).Then(s.routes())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/items", s.listItems).Methods(http.MethodGet)
	api.HandleFunc("/items", s.call(ledgerapi.TypeMint)).Methods(http.MethodPost)
	api.HandleFunc("/items/count", s.itemCount).Methods(http.MethodGet)
	api.HandleFunc("/items/{id:[0-9]+}", s.getItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id:[0-9]+}/metadata", s.getMetadata).Methods(http.MethodGet)
	api.HandleFunc("/items/{id:[0-9]+}/list", s.call(ledgerapi.TypeList)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id:[0-9]+}/cancel", s.call(ledgerapi.TypeCancelSale)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id:[0-9]+}/buy", s.call(ledgerapi.TypeBuy)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id:[0-9]+}/transfer", s.call(ledgerapi.TypeTransfer)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id:[0-9]+}/auction", s.call(ledgerapi.TypeStartAuction)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id:[0-9]+}/auction/end", s.call(ledgerapi.TypeEndAuction)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id:[0-9]+}/bids", s.call(ledgerapi.TypePlaceBid)).Methods(http.MethodPost)
	api.HandleFunc("/withdraw", s.call(ledgerapi.TypeWithdraw)).Methods(http.MethodPost)
	api.HandleFunc("/pending", s.query(ledgerapi.TypePending)).Methods(http.MethodGet)
	api.HandleFunc("/balance", s.query(ledgerapi.TypeBalance)).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{address}/balance", s.query(ledgerapi.TypeBalance)).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{address}/pending", s.query(ledgerapi.TypePending)).Methods(http.MethodGet)
	api.HandleFunc("/events", s.events).Methods(http.MethodGet)
	api.HandleFunc("/receipts/key", s.query(ledgerapi.TypePublicKey)).Methods(http.MethodGet)

	router.HandleFunc("/ws/events", s.websocket(allItems))
	router.HandleFunc("/ws/items/{id:[0-9]+}", s.websocket(""))
	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := s.processor.Process(r.Context(), ledgerapi.LedgerRequest{Type: ledgerapi.TypePing})
	writeResponse(w, resp)
}

// call builds a handler for a state-changing request. The body is optional
// and decoded into the request; the path id and caller header win over it.
func (s *Server) call(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ledgerapi.LedgerRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "BadRequest", fmt.Sprintf("invalid JSON body: %v", err))
				return
			}
		}
		req.Type = kind
		req.Caller = r.Header.Get(CallerHeader)
		if id, ok := pathID(r); ok {
			req.ItemID = id
		}

		resp := s.processor.Process(r.Context(), req)
		if resp.Receipt != "" {
			if compact, err := resp.Receipt.CompressGzip(); err == nil {
				w.Header().Set(ReceiptHeader, compact.String())
			}
		}
		writeResponse(w, resp)
	}
}

// query builds a handler for a read keyed by an address, taken from the
// path when present and from the caller header otherwise.
func (s *Server) query(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := ledgerapi.LedgerRequest{Type: kind, Caller: r.Header.Get(CallerHeader)}
		if addr, ok := mux.Vars(r)["address"]; ok {
			req.Caller = addr
		}
		writeResponse(w, s.processor.Process(r.Context(), req))
	}
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	writeResponse(w, s.processor.Process(r.Context(), ledgerapi.LedgerRequest{Type: ledgerapi.TypeGetItem, ItemID: id}))
}

// getMetadata returns the token URI verbatim.
func (s *Server) getMetadata(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	resp := s.processor.Process(r.Context(), ledgerapi.LedgerRequest{Type: ledgerapi.TypeGetItem, ItemID: id})
	if !resp.Success {
		writeResponse(w, resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": id, "metadata_ref": resp.Item.MetadataRef})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ledgerapi.LedgerRequest{
		Type:    ledgerapi.TypeListItems,
		Owner:   q.Get("owner"),
		Creator: q.Get("creator"),
		State:   q.Get("state"),
	}
	writeResponse(w, s.processor.Process(r.Context(), req))
}

func (s *Server) itemCount(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, s.processor.Process(r.Context(), ledgerapi.LedgerRequest{Type: ledgerapi.TypeItemCount}))
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ledgerapi.LedgerRequest{Type: ledgerapi.TypeEvents}
	if v := q.Get("from"); v != "" {
		from, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "from must be a non-negative integer")
			return
		}
		req.From = from
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "BadRequest", "limit must be a non-negative integer")
			return
		}
		req.Limit = limit
	}
	writeResponse(w, s.processor.Process(r.Context(), req))
}

// websocket subscribes the connection to topic, or to the path item when topic is empty.
func (s *Server) websocket(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := topic
		if t == "" {
			t = mux.Vars(r)["id"]
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ERROR: Failed to upgrade connection: %v", err)
			return
		}

		c, ok := s.hub.register(conn, t)
		if !ok {
			_ = conn.Close()
			return
		}
		s.hub.serve(c)
	}
}

func pathID(r *http.Request) (core.ItemID, bool) {
	raw, ok := mux.Vars(r)["id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return core.ItemID(id), true
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
