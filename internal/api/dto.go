package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type Credentials struct {
	Username string `json:"nombreUsuario"`
	Password string `json:"clave"`
}

// LoginResponse mirrors the backend's login answer. Role is kept raw because
// it arrives either as a string or as a {idRol, definicion} object.
type LoginResponse struct {
	ID       int64           `json:"id"`
	Username string          `json:"nombreUsuario"`
	Role     json.RawMessage `json:"rol"`
	Token    string          `json:"token,omitempty"`
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
}

type RegisterRequest struct {
	Name     string `json:"nombre"`
	Surname  string `json:"apellido"`
	Email    string `json:"email"`
	Password string `json:"clave"`
	Role     string `json:"rol"`
}

type orderLineDTO struct {
	ProductID  int64           `json:"instrumentoId"`
	Quantity   int             `json:"cantidad"`
	UnitPrice  decimal.Decimal `json:"precioUnitario"`
	Instrument *struct {
		ID int64 `json:"idInstrumento"`
	} `json:"instrumento,omitempty"`
}

type createOrderLineDTO struct {
	ProductID int64   `json:"instrumentoId"`
	Quantity  int     `json:"cantidad"`
	UnitPrice float64 `json:"precioUnitario"`
}

type createOrderDTO struct {
	Lines []createOrderLineDTO `json:"detalles"`
}

type orderDTO struct {
	ID            int64           `json:"idPedido"`
	Date          string          `json:"fecha"`
	Total         decimal.Decimal `json:"totalPedido"`
	Status        string          `json:"estado"`
	CurrentStatus string          `json:"estadoActual"`
	UserID        int64           `json:"usuarioId"`
	User          *struct {
		ID int64 `json:"idUsuario"`
	} `json:"usuario,omitempty"`
	Lines []orderLineDTO `json:"detalles"`
}

type productDTO struct {
	ID    int64           `json:"idInstrumento"`
	Code  string          `json:"codigo"`
	Name  string          `json:"denominacion"`
	Brand string          `json:"marca"`
	Stock int             `json:"stock"`
	Price decimal.Decimal `json:"precioActual"`
}

// userDTO is a backend account. The id arrives as idUsuario or id and the
// role in either login shape.
type userDTO struct {
	IDUsuario int64           `json:"idUsuario"`
	ID        int64           `json:"id"`
	Username  string          `json:"nombreUsuario"`
	Name      string          `json:"nombre"`
	Surname   string          `json:"apellido"`
	Email     string          `json:"email"`
	Role      json.RawMessage `json:"rol"`
}

func newCreateOrderDTO(req domain.OrderRequest) createOrderDTO {
	lines := make([]createOrderLineDTO, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, createOrderLineDTO{
			ProductID: int64(l.ProductRef),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPriceAtSubmission.InexactFloat64(),
		})
	}
	return createOrderDTO{Lines: lines}
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (o orderDTO) toDomain() domain.Order {
	status := o.CurrentStatus
	if status == "" {
		status = o.Status
	}
	userID := o.UserID
	if userID == 0 && o.User != nil {
		userID = o.User.ID
	}

	lines := make([]domain.OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		ref := l.ProductID
		if ref == 0 && l.Instrument != nil {
			ref = l.Instrument.ID
		}
		lines = append(lines, domain.OrderLine{
			ProductRef:            domain.ProductID(ref),
			Quantity:              l.Quantity,
			UnitPriceAtSubmission: l.UnitPrice,
		})
	}

	return domain.Order{
		ID:     o.ID,
		UserID: userID,
		Date:   parseDate(o.Date),
		Total:  o.Total,
		Status: domain.OrderStatus(status),
		Lines:  lines,
	}
}

func (p productDTO) toDomain() domain.Product {
	return domain.Product{
		ID:    domain.ProductID(p.ID),
		Name:  p.Name,
		Brand: p.Brand,
		Price: p.Price,
		Stock: p.Stock,
	}
}

// toDomain keeps accounts with an unrecognized role, as RoleNone.
func (u userDTO) toDomain() domain.Account {
	id := u.IDUsuario
	if id == 0 {
		id = u.ID
	}
	email := u.Email
	if email == "" {
		email = u.Username
	}
	role, _ := domain.ParseRole(u.Role)
	return domain.Account{
		ID:      id,
		Name:    u.Name,
		Surname: u.Surname,
		Email:   email,
		Role:    role,
	}
}
