package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"AgentHub-Chain/internal/catalog"
	xerrors "AgentHub-Chain/internal/errors"
	"AgentHub-Chain/internal/journal"
	"AgentHub-Chain/internal/onramp"
	"AgentHub-Chain/internal/pricing"
	"AgentHub-Chain/internal/registry"
	"AgentHub-Chain/internal/session"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// sessionResponse 携带操作后的会话状态与当前通知。
type sessionResponse struct {
	Session      session.Snapshot      `json:"session"`
	Notification *session.Notification `json:"notification,omitempty"`
	WrongNetwork *bool                 `json:"wrongNetwork,omitempty"`
}

func (s *Server) sessionState() sessionResponse {
	resp := sessionResponse{Session: s.deps.Session.Snapshot()}
	if note, ok := s.deps.Session.Notification(); ok {
		resp.Notification = &note
	}
	return resp
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	if err := s.deps.Session.Connect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	s.deps.Session.Disconnect()
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) handleCheckNetwork(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	wrong, err := s.deps.Session.CheckNetwork(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := s.sessionState()
	resp.WrongNetwork = &wrong
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSwitchNetwork(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	if err := s.deps.Session.SwitchNetwork(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	note, ok := s.deps.Session.Notification()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		unavailable(w, "session")
		return
	}
	s.hub.HandleConnection(w, r)
}

func (s *Server) scanIDs(r *http.Request) []uint64 {
	size := s.deps.ScanSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			size = parsed
		}
	}
	return catalog.IDs(size)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	criteria, err := parseCriteria(r)
	if err != nil {
		writeError(w, err)
		return
	}
	agents, err := s.deps.Scanner.ScanAgents(r.Context(), s.deps.Session, s.scanIDs(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.Filter(agents, criteria))
}

func parseCriteria(r *http.Request) (catalog.Criteria, error) {
	q := r.URL.Query()
	criteria := catalog.Criteria{
		Query:       q.Get("q"),
		Integration: q.Get("integration"),
		ActiveOnly:  q.Get("active") == "true",
	}
	for key, target := range map[string]**decimal.Decimal{"min_price": &criteria.MinPrice, "max_price": &criteria.MaxPrice} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return catalog.Criteria{}, xerrors.New(xerrors.CodeInvalidArgument, key+" 格式错误")
		}
		*target = &value
	}
	return criteria, nil
}

// accountParam 读取 account 查询参数，缺省时使用已连接账户。
func (s *Server) accountParam(r *http.Request) (common.Address, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("account"))
	if raw == "" {
		raw = s.deps.Session.Snapshot().Account
	}
	if raw == "" {
		return common.Address{}, xerrors.New(xerrors.CodeNotConnected, "wallet not connected")
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "account 不是合法地址")
	}
	return common.HexToAddress(raw), nil
}

func (s *Server) handleSubscribedAgents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	account, err := s.accountParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	agents, err := s.deps.Scanner.ScanSubscribed(r.Context(), s.deps.Session, account, s.scanIDs(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if agents == nil {
		agents = []catalog.SubscribedAgent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func uintParam(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, name+" 必须为非负整数")
	}
	return value, nil
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	agent, err := s.deps.Session.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type subscriptionResponse struct {
	AgentID uint64                        `json:"agentId"`
	Account string                        `json:"account"`
	Active  bool                          `json:"active"`
	Details *registry.SubscriptionDetails `json:"details,omitempty"`
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	account, err := s.accountParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	active, err := s.deps.Session.HasActiveSubscription(r.Context(), account, id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := subscriptionResponse{AgentID: id, Account: account.Hex(), Active: active}
	if active {
		details, err := s.deps.Session.GetSubscriptionDetails(r.Context(), account, id)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Details = &details
	}
	writeJSON(w, http.StatusOK, resp)
}

type priceRequest struct {
	Price *decimal.Decimal `json:"price"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "请求体解析失败")
		return
	}
	price := decimal.Zero
	if req.Price != nil {
		price = *req.Price
	} else if s.deps.Session.Snapshot().HasContract {
		// 未指定价格时按合约中的月费支付。
		agent, err := s.deps.Session.GetAgent(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		price = registry.FromWei(agent.PricePerMonth)
	}
	result, err := s.deps.Session.PurchaseSubscription(r.Context(), id, price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetFeatureRequest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	index, err := uintParam(r, "index")
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := s.deps.Session.GetFeatureRequest(r.Context(), index)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		registry.FeatureRequest
		StatusName string `json:"status_name"`
		Upvoted    *bool  `json:"upvoted,omitempty"`
	}{FeatureRequest: req, StatusName: req.Status.String()}
	if account, err := s.accountParam(r); err == nil {
		voted, err := s.deps.Session.UserUpvotes(r.Context(), account, index)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Upvoted = &voted
	}
	writeJSON(w, http.StatusOK, resp)
}

type featureRequestBody struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

func (s *Server) handleSubmitFeatureRequest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	var body featureRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "请求体解析失败")
		return
	}
	result, err := s.deps.Session.SubmitFeatureRequest(r.Context(), strings.TrimSpace(body.Title), strings.TrimSpace(body.Description), body.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpvote(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session == nil {
		unavailable(w, "session")
		return
	}
	index, err := uintParam(r, "index")
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.deps.Session.UpvoteFeatureRequest(r.Context(), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prices == nil {
		unavailable(w, "pricing")
		return
	}
	rates, err := s.deps.Prices.Latest(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

type convertResponse struct {
	Amount   decimal.Decimal `json:"amount"`
	Payment  pricing.Payment `json:"payment"`
	Currency string          `json:"currency"`
	Price    decimal.Decimal `json:"price"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prices == nil {
		unavailable(w, "pricing")
		return
	}
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		badRequest(w, "amount 格式错误")
		return
	}
	payment := pricing.Payment(strings.ToUpper(q.Get("payment")))
	if payment == "" {
		payment = pricing.PaymentFLOW
	}
	currency := strings.ToUpper(q.Get("currency"))
	if currency == "" {
		currency = "USD"
	}
	rates, err := s.deps.Prices.Latest(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	price, err := pricing.Convert(rates, amount, payment, currency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{Amount: amount, Payment: payment, Currency: currency, Price: price})
}

func (s *Server) handleOnramp(w http.ResponseWriter, r *http.Request) {
	if s.deps.Onramp == nil {
		unavailable(w, "onramp")
		return
	}
	q := r.URL.Query()
	params := onramp.Params{
		Address:     q.Get("address"),
		RedirectURL: q.Get("redirect_url"),
	}
	if params.Address == "" && s.deps.Session != nil {
		params.Address = s.deps.Session.Snapshot().Account
	}
	if raw := q.Get("amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			badRequest(w, "amount 格式错误")
			return
		}
		params.PresetCryptoAmount = amount
	}
	link, err := s.deps.Onramp.GenerateURL(params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		unavailable(w, "journal")
		return
	}
	q := r.URL.Query()
	var opts []journal.ListOption
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, journal.WithLimit(parsed))
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			opts = append(opts, journal.WithOffset(parsed))
		}
	}
	if account := q.Get("account"); account != "" {
		opts = append(opts, journal.WithAccount(account))
	}
	if method := q.Get("method"); method != "" {
		opts = append(opts, journal.WithMethod(method))
	}
	if raw := q.Get("status"); raw != "" {
		var statuses []journal.Status
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, journal.Status(part))
			}
		}
		opts = append(opts, journal.WithStatuses(statuses...))
	}
	records, err := s.deps.Journal.List(r.Context(), opts...)
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易记录失败"))
		return
	}
	if records == nil {
		records = []*journal.TxRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
