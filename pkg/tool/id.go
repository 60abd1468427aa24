package tool

import (
	"fmt"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateOrderID builds the merchant order identifier for a checkout.
// Format: SUB-<userID>-<planID>-<suffix>. The random suffix keeps repeated
// checkouts for the same (user, plan) distinct; the whole string is the
// correlation key every gateway notification carries back.
func GenerateOrderID(userID, planID string) string {
	u := uuid.Must(uuid.NewV7())
	return fmt.Sprintf("SUB-%s-%s-%x", userID, planID, u[10:])
}
