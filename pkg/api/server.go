package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/app/dex"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

const (
	maxTxBytes        = 64 << 10
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

type Options struct {
	CORSOrigins []string
	Logger      *zap.SugaredLogger
}

// Server handles REST API and WebSocket connections
type Server struct {
	app    *dex.App
	ex     *exchange.Exchange
	router *mux.Router
	hub    *Hub
	cors   *cors.Cors
	logger *zap.SugaredLogger
}

func NewServer(app *dex.App, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		app:    app,
		ex:     app.Exchange(),
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		logger: logger,
		cors: cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/exchange", s.handleGetExchange).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/balances/{address}", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/balances/{address}/{asset}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")
	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler is the router behind CORS
func (s *Server) Handler() http.Handler {
	return s.cors.Handler(s.router)
}

// Run starts the WebSocket hub and the exchange event feed. It returns
// when ctx is done.
func (s *Server) Run(ctx context.Context) {
	records, cancel := s.ex.Subscribe(1024)
	defer cancel()
	go s.hub.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-records:
			s.hub.Publish(rec)
		}
	}
}

// Start serves HTTP on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ExchangeInfo{
		Address:      s.ex.Address(),
		FeeAccount:   s.ex.FeeAccount(),
		FeePercent:   s.ex.FeePercent(),
		OrderCount:   s.ex.OrderCount(),
		StateRoot:    s.ex.StateRoot(),
		LastEventSeq: s.ex.LastEventSeq(),
		ChainID:      s.app.Domain().ChainID.String(),
	})
}

func orderInfo(st exchange.OrderState) OrderInfo {
	return OrderInfo{Order: st.Order, Status: st.Status}
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := orderbook.ParseStatus(q.Get("status"))
	if err != nil {
		respondError(w, http.StatusBadRequest, dex.CodeMalformed, err.Error())
		return
	}
	filter := orderbook.Filter{Status: status}
	if u := q.Get("user"); u != "" {
		addr, ok := parseAddress(w, u)
		if !ok {
			return
		}
		filter.User = &addr
	}

	orders := s.ex.OrdersWithStatus(filter)
	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = orderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, dex.CodeMalformed, "order id must be a positive integer")
		return
	}
	o, ok := s.ex.OrderWithStatus(id)
	if !ok {
		s.respondErr(w, fmt.Errorf("%w: %d", exchange.ErrOrderNotFound, id))
		return
	}
	respondJSON(w, orderInfo(o))
}

func balanceInfo(c ledger.Cell) BalanceInfo {
	return BalanceInfo{
		Asset:     c.Asset,
		Amount:    c.Amount,
		Formatted: util.FormatUnits(c.Amount, util.EtherDecimals),
	}
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	cells := s.ex.Balances(addr)
	response := make([]BalanceInfo, len(cells))
	for i, c := range cells {
		response[i] = balanceInfo(c)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, ok := parseAddress(w, vars["address"])
	if !ok {
		return
	}
	a, err := asset.Parse(vars["asset"])
	if err != nil {
		respondError(w, http.StatusBadRequest, dex.CodeMalformed, err.Error())
		return
	}
	respondJSON(w, balanceInfo(ledger.Cell{Asset: a, Owner: addr, Amount: s.ex.BalanceOf(a, addr)}))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	nonce, err := s.app.Nonce(addr)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	info := AccountInfo{
		Address:  addr,
		Nonce:    nonce,
		Wallet:   s.app.Bank().BalanceOf(addr),
		Tokens:   []TokenHolding{},
		Balances: []BalanceInfo{},
	}
	for _, tok := range s.app.Tokens().Tokens() {
		info.Tokens = append(info.Tokens, TokenHolding{
			Token:     tok.Address(),
			Symbol:    tok.Symbol(),
			Balance:   tok.BalanceOf(addr),
			Allowance: tok.Allowance(addr, s.ex.Address()),
		})
	}
	for _, c := range s.ex.Balances(addr) {
		info.Balances = append(info.Balances, balanceInfo(c))
	}
	respondJSON(w, info)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, dex.CodeMalformed, "after must be a sequence number")
			return
		}
		after = n
	}
	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, dex.CodeMalformed, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	respondJSON(w, EventsPage{
		Events:  s.ex.EventsSince(after, limit),
		LastSeq: s.ex.LastEventSeq(),
	})
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTxBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, dex.CodeMalformed, err.Error())
		return
	}

	rcpt, err := s.app.Apply(r.Context(), body)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, rcpt)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// StatusFor maps a wire code to its HTTP status
func StatusFor(code string) int {
	switch code {
	case exchange.CodeOK:
		return http.StatusOK
	case exchange.CodeOrderNotFound, dex.CodeUnknownToken:
		return http.StatusNotFound
	case exchange.CodeUnauthorized:
		return http.StatusForbidden
	case exchange.CodeOrderAlreadyFilled, exchange.CodeOrderAlreadyCancelled, exchange.CodeReentrantCall:
		return http.StatusConflict
	case exchange.CodeInsufficientBalance, exchange.CodeAmountOverflow, exchange.CodeInvalidAssetForNativeOp,
		exchange.CodeValueMismatch, exchange.CodeUnknownAsset, exchange.CodeDirectTransfer,
		dex.CodeInsufficientFunds, dex.CodeInsufficientAllowance, dex.CodeTokenBalance, dex.CodeInvalidRecipient:
		return http.StatusUnprocessableEntity
	case dex.CodeBadSignature, dex.CodeNonceTooLow, dex.CodeMalformed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	code := dex.Code(err)
	status := StatusFor(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Errorw("api_internal_error", "err", err)
		message = "internal error"
	}
	respondError(w, status, code, message)
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, dex.CodeMalformed, "invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
	})
}
