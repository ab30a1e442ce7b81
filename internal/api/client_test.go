package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/api/apitest"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, srv *apitest.Server) *api.Client {
	t.Helper()
	return api.NewClient(api.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, logger.NewNop())
}

func setup(t *testing.T) (*apitest.Server, *api.Client) {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	return srv, newClient(t, srv)
}

func TestLogin_Success(t *testing.T) {
	srv, client := setup(t)
	id := srv.AddUser("ana", "secret", "Admin")

	resp, err := client.Login(context.Background(), api.Credentials{Username: "ana", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "ana", resp.Username)

	role, err := domain.ParseRole(resp.Role)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, role)
}

func TestLogin_RoleAsObject(t *testing.T) {
	srv, client := setup(t)
	srv.AddUser("op", "secret", "Operador")
	srv.RoleAsObject(true)

	resp, err := client.Login(context.Background(), api.Credentials{Username: "op", Password: "secret"})
	require.NoError(t, err)

	role, err := domain.ParseRole(resp.Role)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOperator, role)
}

func TestLogin_BadCredentials(t *testing.T) {
	srv, client := setup(t)
	srv.AddUser("ana", "secret", "Admin")

	_, err := client.Login(context.Background(), api.Credentials{Username: "ana", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuth))
	assert.Equal(t, "Usuario o clave incorrectos", api.Message(err))
}

func TestRegister(t *testing.T) {
	srv, client := setup(t)
	ctx := context.Background()

	req := api.RegisterRequest{Name: "Ana", Surname: "Diaz", Email: "ana@example.com", Password: "1234", Role: "Visor"}
	require.NoError(t, client.Register(ctx, req))

	u, ok := srv.User("ana@example.com")
	require.True(t, ok)
	assert.Equal(t, "Visor", u.Role)

	err := client.Register(ctx, req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, "El email ya está registrado", api.Message(err))
}

func TestCreateOrder_SendsHeadersAndLines(t *testing.T) {
	srv, client := setup(t)

	req := domain.OrderRequest{
		IdempotencyKey: "key-1",
		Lines: []domain.OrderLine{
			{ProductRef: 1, Quantity: 2, UnitPriceAtSubmission: decimal.RequireFromString("10.50")},
			{ProductRef: 3, Quantity: 1, UnitPriceAtSubmission: decimal.NewFromInt(5)},
		},
	}
	order, err := client.CreateOrder(context.Background(), 42, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, int64(42), order.UserID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(26)), "total %s", order.Total)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, domain.ProductID(3), order.Lines[1].ProductRef)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "42", reqs[0].UserID)
	assert.Equal(t, "key-1", reqs[0].IdempotencyKey)
	assert.NotEmpty(t, reqs[0].RequestID)
}

func TestCreateOrder_IdempotencyKeyDeduplicates(t *testing.T) {
	srv, client := setup(t)
	req := domain.OrderRequest{
		IdempotencyKey: "same",
		Lines:          []domain.OrderLine{{ProductRef: 1, Quantity: 1, UnitPriceAtSubmission: decimal.NewFromInt(1)}},
	}

	first, err := client.CreateOrder(context.Background(), 7, req)
	require.NoError(t, err)
	second, err := client.CreateOrder(context.Background(), 7, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, srv.Orders(), 1)
}

func TestCreateOrder_Unauthenticated(t *testing.T) {
	_, client := setup(t)
	req := domain.OrderRequest{Lines: []domain.OrderLine{{ProductRef: 1, Quantity: 1}}}

	_, err := client.CreateOrder(context.Background(), 0, req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuth))
}

func TestCreateOrder_ServerError(t *testing.T) {
	srv, client := setup(t)
	srv.FailOrders(http.StatusInternalServerError)
	req := domain.OrderRequest{Lines: []domain.OrderLine{{ProductRef: 1, Quantity: 1}}}

	_, err := client.CreateOrder(context.Background(), 1, req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNetwork))
	assert.Equal(t, "Error al guardar el pedido", api.Message(err))
}

func TestListOrders_Authorization(t *testing.T) {
	srv, client := setup(t)
	ctx := context.Background()
	admin := srv.AddUser("admin", "x", "Admin")
	viewer := srv.AddUser("viewer", "x", "Visor")

	line := []domain.OrderLine{{ProductRef: 1, Quantity: 1, UnitPriceAtSubmission: decimal.NewFromInt(3)}}
	_, err := client.CreateOrder(ctx, viewer, domain.OrderRequest{Lines: line})
	require.NoError(t, err)
	_, err = client.CreateOrder(ctx, admin, domain.OrderRequest{Lines: line})
	require.NoError(t, err)

	all, err := client.ListOrders(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = client.ListOrders(ctx, viewer)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuthorization))

	mine, err := client.ListOrdersByUser(ctx, viewer, viewer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, viewer, mine[0].UserID)
	assert.False(t, mine[0].Date.IsZero())
}

func TestUpdateOrderStatus(t *testing.T) {
	srv, client := setup(t)
	ctx := context.Background()
	admin := srv.AddUser("admin", "x", "Admin")

	line := []domain.OrderLine{{ProductRef: 1, Quantity: 1, UnitPriceAtSubmission: decimal.NewFromInt(3)}}
	created, err := client.CreateOrder(ctx, admin, domain.OrderRequest{Lines: line})
	require.NoError(t, err)

	updated, err := client.UpdateOrderStatus(ctx, admin, created.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)

	_, err = client.UpdateOrderStatus(ctx, admin, 999, domain.OrderStatusShipped)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNetwork))
}

func TestListProducts(t *testing.T) {
	srv, client := setup(t)
	srv.AddProduct(apitest.Product{ID: 1, Name: "Guitarra", Brand: "Fender", Stock: 3, Price: 1500.5})

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, domain.ProductID(1), products[0].ID)
	assert.Equal(t, "Guitarra", products[0].Name)
	assert.Equal(t, 3, products[0].Stock)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("1500.5")))
}

func TestUnreachableBackend_OpensBreaker(t *testing.T) {
	srv := apitest.NewServer()
	url := srv.URL
	srv.Close()

	breakerCfg := circuitbreaker.DefaultConfig("test")
	breakerCfg.MaxFailures = 2
	breakerCfg.OpenTimeout = time.Minute
	client := api.NewClient(api.Config{BaseURL: url, Timeout: time.Second, Breaker: breakerCfg}, logger.NewNop())

	for i := 0; i < 2; i++ {
		_, err := client.ListProducts(context.Background())
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindNetwork))
	}

	_, err := client.ListProducts(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.True(t, domain.IsKind(err, domain.KindNetwork))
}

func TestUsers_AdminLifecycle(t *testing.T) {
	srv, client := setup(t)
	adminID := srv.AddUser("root", "pw", "Admin")
	viewerID := srv.AddUser("ana", "1234", "Visor")
	ctx := context.Background()

	_, err := client.ListUsers(ctx, viewerID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuthorization))

	require.NoError(t, client.RegisterOperator(ctx, adminID, api.RegisterRequest{
		Name: "Op", Surname: "Era", Email: "op@example.com", Password: "secret", Role: "Admin",
	}))
	op, ok := srv.User("op@example.com")
	require.True(t, ok)
	assert.Equal(t, "Operador", op.Role)

	users, err := client.ListUsers(ctx, adminID)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, domain.Account{ID: op.ID, Name: "Op", Surname: "Era", Email: "op@example.com", Role: domain.RoleOperator}, users[2])

	require.NoError(t, client.DeleteUser(ctx, adminID, op.ID))
	err = client.DeleteUser(ctx, adminID, op.ID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNetwork))
	assert.Contains(t, api.Message(err), "no encontrado")
}

func TestCreateOrder_BadRequestIsValidation(t *testing.T) {
	srv, client := setup(t)
	id := srv.AddUser("ana", "1234", "Visor")
	srv.FailOrders(http.StatusBadRequest)

	_, err := client.CreateOrder(context.Background(), id, domain.OrderRequest{
		Lines:          []domain.OrderLine{{ProductRef: 1, Quantity: 9, UnitPriceAtSubmission: decimal.NewFromInt(10)}},
		IdempotencyKey: "k",
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, "Error al guardar el pedido", api.Message(err))
}
