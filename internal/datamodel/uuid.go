package datamodel

import (
	"strings"

	"github.com/google/uuid"
)

// vwoNamespace is the fixed root of the deterministic UUID chain, a
// name-based (version 5) UUID of the vendor URL under the standard URL
// namespace.
var vwoNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://vwo.com"))

// GenerateUUID derives the visitor UUID for a user within an account.
// The chain is account-scoped so identical user ids in different
// accounts never collide: namespace(account) = uuid5(vwoNamespace,
// accountId), uuid = uuid5(namespace(account), userId). The result is
// rendered as 32 uppercase hex digits without dashes.
func GenerateUUID(userID, accountID string) string {
	accountNS := uuid.NewSHA1(vwoNamespace, []byte(accountID))
	id := uuid.NewSHA1(accountNS, []byte(userID))
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}

// RandomUUID returns a random identifier for anonymous users.
func RandomUUID() string {
	return uuid.NewString()
}
