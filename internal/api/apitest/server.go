// Package apitest provides an in-process fake of the storefront backend for
// tests: accounts, orders and the instrument catalog.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

type User struct {
	ID       int64
	Username string
	Password string
	Name     string
	Surname  string
	Role     string
}

type Product struct {
	ID    int64   `json:"idInstrumento"`
	Name  string  `json:"denominacion"`
	Brand string  `json:"marca"`
	Stock int     `json:"stock"`
	Price float64 `json:"precioActual"`
}

type OrderLine struct {
	ProductID int64   `json:"instrumentoId"`
	Quantity  int     `json:"cantidad"`
	UnitPrice float64 `json:"precioUnitario"`
}

type Order struct {
	ID     int64       `json:"idPedido"`
	Date   string      `json:"fecha"`
	Total  float64     `json:"totalPedido"`
	Status string      `json:"estado"`
	UserID int64       `json:"usuarioId"`
	Lines  []OrderLine `json:"detalles"`
}

// Request is a recorded call, kept for header assertions.
type Request struct {
	Method         string
	Path           string
	UserID         string
	RequestID      string
	IdempotencyKey string
}

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	users     map[string]*User
	products  []Product
	orders    []Order
	requests  []Request
	byKey     map[string]int64
	nextUser  int64
	nextOrder int64

	roleAsObject bool
	orderStatus  int
	orderGate    chan struct{}
	orderStarted chan struct{}
}

func NewServer() *Server {
	s := &Server{
		users:     make(map[string]*User),
		byKey:     make(map[string]int64),
		nextUser:  1,
		nextOrder: 1,
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route("/usuarios", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/registro", s.handleRegister)
		r.With(requireUser).Get("/", s.handleListUsers)
		r.With(requireUser).Delete("/{userID}", s.handleDeleteUser)
	})
	r.Get("/instrumentos", s.handleProducts)

	r.Route("/pedidos", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/", s.handleCreateOrder)
		r.Get("/", s.handleListOrders)
		r.Get("/usuario/{userID}", s.handleListUserOrders)
		r.Patch("/{orderID}/estado", s.handleUpdateStatus)
	})
	return r
}

// AddUser registers a user and returns its id.
func (s *Server) AddUser(username, password, role string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextUser
	s.nextUser++
	s.users[username] = &User{ID: id, Username: username, Password: password, Role: role}
	return id
}

func (s *Server) User(username string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (s *Server) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, p)
}

// RoleAsObject switches login responses to the {idRol, definicion} role shape.
func (s *Server) RoleAsObject(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleAsObject = v
}

// FailOrders makes order creation answer with status until reset with 0.
func (s *Server) FailOrders(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderStatus = status
}

// HoldOrders blocks order creation until the returned release func is called.
// started receives once per held request.
func (s *Server) HoldOrders() (started <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	st := make(chan struct{}, 16)
	s.orderGate = gate
	s.orderStarted = st
	var once sync.Once
	return st, func() { once.Do(func() { close(gate) }) }
}

func (s *Server) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls counts recorded requests matching method and path prefix.
func (s *Server) Calls(method, pathPrefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:         r.Method,
			Path:           r.URL.Path,
			UserID:         r.Header.Get("X-User-Id"),
			RequestID:      r.Header.Get("X-Request-ID"),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64); err != nil {
			respondError(w, http.StatusUnauthorized, "No se pudo identificar al usuario")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"nombreUsuario"`
		Password string `json:"clave"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Username]
	asObject := s.roleAsObject
	s.mu.Unlock()

	if !ok || u.Password != req.Password {
		respondJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Usuario o clave incorrectos",
		})
		return
	}

	var role interface{} = u.Role
	if asObject {
		role = map[string]interface{}{"idRol": roleID(u.Role), "definicion": u.Role}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":            u.ID,
		"nombreUsuario": u.Username,
		"rol":           role,
		"success":       true,
		"message":       "Login exitoso",
	})
}

func roleID(role string) int {
	switch strings.ToLower(role) {
	case "admin":
		return 1
	case "operador":
		return 2
	default:
		return 3
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"nombre"`
		Surname  string `json:"apellido"`
		Email    string `json:"email"`
		Password string `json:"clave"`
		Role     string `json:"rol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		respondError(w, http.StatusBadRequest, "El email ya está registrado")
		return
	}
	id := s.nextUser
	s.nextUser++
	s.users[req.Email] = &User{
		ID:       id,
		Username: req.Email,
		Password: req.Password,
		Name:     req.Name,
		Surname:  req.Surname,
		Role:     req.Role,
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"idUsuario": id, "email": req.Email})
}

type userJSON struct {
	ID      int64                  `json:"idUsuario"`
	Name    string                 `json:"nombre"`
	Surname string                 `json:"apellido"`
	Email   string                 `json:"email"`
	Role    map[string]interface{} `json:"rol"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		respondError(w, http.StatusForbidden, "Acceso denegado")
		return
	}
	s.mu.Lock()
	out := make([]userJSON, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, userJSON{
			ID:      u.ID,
			Name:    u.Name,
			Surname: u.Surname,
			Email:   u.Username,
			Role:    map[string]interface{}{"idRol": roleID(u.Role), "definicion": u.Role},
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		respondError(w, http.StatusForbidden, "Acceso denegado")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, u := range s.users {
		if u.ID == id {
			delete(s.users, name)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	respondError(w, http.StatusNotFound, fmt.Sprintf("Usuario %d no encontrado", id))
}

func (s *Server) handleProducts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	products := make([]Product, len(s.products))
	copy(products, s.products)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, products)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)

	var req struct {
		Lines []OrderLine `json:"detalles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Lines) == 0 {
		respondError(w, http.StatusBadRequest, "El pedido debe tener al menos un detalle")
		return
	}

	s.mu.Lock()
	gate, started, status := s.orderGate, s.orderStarted, s.orderStatus
	s.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		respondError(w, status, "Error al guardar el pedido")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Header.Get("Idempotency-Key")
	if id, ok := s.byKey[key]; ok && key != "" {
		for _, o := range s.orders {
			if o.ID == id {
				respondJSON(w, http.StatusCreated, o)
				return
			}
		}
	}

	order := Order{
		ID:     s.nextOrder,
		Date:   time.Now().UTC().Format("2006-01-02"),
		Status: "PENDIENTE",
		UserID: userID,
		Lines:  req.Lines,
	}
	for _, l := range req.Lines {
		order.Total += l.UnitPrice * float64(l.Quantity)
	}
	s.nextOrder++
	s.orders = append(s.orders, order)
	if key != "" {
		s.byKey[key] = order.ID
	}
	respondJSON(w, http.StatusCreated, order)
}

func (s *Server) isAdmin(r *http.Request) bool {
	id, _ := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return strings.EqualFold(u.Role, "admin")
		}
	}
	return false
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		respondError(w, http.StatusForbidden, "Acceso denegado")
		return
	}
	respondJSON(w, http.StatusOK, s.Orders())
}

func (s *Server) handleListUserOrders(w http.ResponseWriter, r *http.Request) {
	owner, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	caller, _ := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	if caller != owner && !s.isAdmin(r) {
		respondError(w, http.StatusForbidden, "Acceso denegado")
		return
	}

	out := []Order{}
	for _, o := range s.Orders() {
		if o.UserID == owner {
			out = append(out, o)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		respondError(w, http.StatusForbidden, "Acceso denegado")
		return
	}
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req struct {
		Status string `json:"estado"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		respondError(w, http.StatusBadRequest, "estado requerido")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			s.orders[i].Status = req.Status
			respondJSON(w, http.StatusOK, s.orders[i])
			return
		}
	}
	respondError(w, http.StatusNotFound, fmt.Sprintf("Pedido %d no encontrado", orderID))
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
