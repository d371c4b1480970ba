package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oishii-app/oishii/internal/model"
	"github.com/oishii-app/oishii/internal/store"
)

func TestTicketBalanceSeededOnFirstRead(t *testing.T) {
	srv := newTestServer(t)
	token := seedUser(t, srv, "u1", true)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "GET", ts.URL+"/v1/tickets/balance", token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	balance := decodeBody[model.TicketBalance](t, resp)
	if balance.Balance != 5 {
		t.Errorf("Balance = %d, want initial allocation of 5", balance.Balance)
	}

	// The seed is recorded as an initial transaction.
	txResp := doJSON(t, "GET", ts.URL+"/v1/tickets/transactions", token, nil)
	defer txResp.Body.Close()
	body := decodeBody[struct {
		Transactions []*model.TicketTransaction `json:"transactions"`
	}](t, txResp)
	if len(body.Transactions) != 1 || body.Transactions[0].Type != model.TicketInitial {
		t.Errorf("transactions = %+v, want one initial grant", body.Transactions)
	}
}

func TestClaimFood(t *testing.T) {
	srv := newTestServer(t)
	seedUser(t, srv, "provider", true)
	claimerToken := seedUser(t, srv, "claimer", true)
	f := seedFood(t, srv, "provider", func(food *model.Food) { food.TicketsRequired = 3 })

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, "POST", ts.URL+"/v1/foods/"+f.ID+"/claim", claimerToken, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	result := decodeBody[store.ClaimResult](t, resp)
	if result.TicketsSpent != 3 {
		t.Errorf("TicketsSpent = %d, want 3", result.TicketsSpent)
	}
	if result.NewBalance != 2 {
		t.Errorf("NewBalance = %d, want 2 after spending 3 of 5", result.NewBalance)
	}
	if result.Food.IsAvailable {
		t.Error("claimed food still available")
	}

	// The provider is notified of the claim.
	ns, err := srv.store.ListNotifications(context.Background(), "provider", store.NotificationFilter{})
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(ns) != 1 || ns[0].RelatedID != f.ID {
		t.Errorf("notifications = %+v, want one claim notice for the food", ns)
	}
}

func TestClaimFoodRejections(t *testing.T) {
	srv := newTestServer(t)
	ownerToken := seedUser(t, srv, "owner", true)
	brokeToken := seedUser(t, srv, "broke", true)

	own := seedFood(t, srv, "owner", nil)
	gone := seedFood(t, srv, "owner", func(f *model.Food) { f.IsAvailable = false })
	pricey := seedFood(t, srv, "owner", func(f *model.Food) { f.TicketsRequired = 99 })

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	cases := []struct {
		name       string
		foodID     string
		token      string
		wantStatus int
	}{
		{"own food", own.ID, ownerToken, http.StatusBadRequest},
		{"unavailable", gone.ID, brokeToken, http.StatusBadRequest},
		{"insufficient balance", pricey.ID, brokeToken, http.StatusBadRequest},
		{"unknown food", "nope", brokeToken, http.StatusNotFound},
	}

	for _, tc := range cases {
		resp := doJSON(t, "POST", ts.URL+"/v1/foods/"+tc.foodID+"/claim", tc.token, nil)
		resp.Body.Close()
		if resp.StatusCode != tc.wantStatus {
			t.Errorf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.wantStatus)
		}
	}
}
