package scenario

import (
	"fmt"
	"strings"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

// splitIDs splits a comma-joined id list, dropping blanks
func splitIDs(ids []string) []string {
	var out []string
	for _, raw := range ids {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

// ExpandEntities pairs the account and customer ids of each alert. Lists of
// equal length pair up in order; a single id on either side pairs with every
// id on the other. Anything else cannot be mapped.
func ExpandEntities(alerts []*domain.Alert) ([]domain.AlertEntity, error) {
	var out []domain.AlertEntity
	for _, a := range alerts {
		accounts := splitIDs(a.AccountIDs)
		customers := splitIDs(a.CustomerIDs)

		switch {
		case len(accounts) == len(customers):
			for i := range accounts {
				out = append(out, domain.AlertEntity{AlertID: a.ID, AccountID: accounts[i], CustomerID: customers[i]})
			}
		case len(customers) == 1:
			for _, acct := range accounts {
				out = append(out, domain.AlertEntity{AlertID: a.ID, AccountID: acct, CustomerID: customers[0]})
			}
		case len(accounts) == 1:
			for _, cust := range customers {
				out = append(out, domain.AlertEntity{AlertID: a.ID, AccountID: accounts[0], CustomerID: cust})
			}
		default:
			return nil, domain.NewComputationError("ENTITY_MAPPING",
				fmt.Sprintf("alert %s: cannot pair %d accounts with %d customers", a.ID, len(accounts), len(customers)))
		}
	}
	return out, nil
}

// Memberships lists the supporting transactions of each alert
func Memberships(alerts []*domain.Alert) []domain.AlertTransaction {
	var out []domain.AlertTransaction
	for _, a := range alerts {
		for _, id := range a.TransactionIDs {
			out = append(out, domain.AlertTransaction{AlertID: a.ID, TransactionID: id})
		}
	}
	return out
}
