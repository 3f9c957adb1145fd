package rates

import (
	"cmp"
	"crypto/md5"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

// KeyPrefix namespaces every cache key written by this package. RateStorage
// relies on it to clear only its own keys from a shared session.
const KeyPrefix = "shipperhq_shipping_rates"

const (
	destinationGuest     = "guest"
	destinationNoAddress = "no_address"
)

// keyItem fixes the field order of the serialized item list.
type keyItem struct {
	ID       string
	Quantity int
	Price    float64
	Weight   float64
}

// appendTo writes the item as "id"|quantity|price|weight. Non-finite floats
// encode as NaN, +Inf and -Inf.
func (it keyItem) appendTo(b *strings.Builder) {
	b.WriteString(strconv.Quote(it.ID))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(it.Quantity))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(it.Price, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(it.Weight, 'g', -1, 64))
}

// KeyGenerator derives cache keys from a cart and shopper context.
type KeyGenerator struct{}

// NewKeyGenerator creates a KeyGenerator.
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// GenerateKey returns a deterministic key covering destination, product line
// items, currency and customer group.
//
// Format: shipperhq_shipping_rates_<md5(destination_items_currency_group)>
//
// Product items are sorted by id before hashing, so reordering the cart does
// not change the key. Non-product items are ignored.
func (g *KeyGenerator) GenerateKey(cart *Cart, sc *ShopperContext) string {
	var currencyID, groupID string
	if sc != nil {
		currencyID = sc.CurrencyID
		groupID = sc.CustomerGroupID
	}

	parts := []string{
		DestinationFingerprint(sc),
		itemsHash(cart),
		currencyID,
		groupID,
	}
	return KeyPrefix + "_" + md5Hex(strings.Join(parts, "_"))
}

// DestinationFingerprint returns "guest" without a customer, "no_address"
// when the customer has no active shipping address, and otherwise a hash of
// country, region, postal code, city and street.
func DestinationFingerprint(sc *ShopperContext) string {
	if sc == nil || sc.Customer == nil {
		return destinationGuest
	}
	addr := sc.Customer.ActiveShippingAddress
	if addr == nil {
		return destinationNoAddress
	}
	return md5Hex(strings.Join([]string{
		addr.CountryISO,
		addr.RegionCode,
		addr.PostalCode,
		addr.City,
		addr.Street,
	}, "_"))
}

func itemsHash(cart *Cart) string {
	products := cart.ProductItems()
	items := make([]keyItem, 0, len(products))
	for _, li := range products {
		items = append(items, keyItem{
			ID:       li.ID,
			Quantity: li.Quantity,
			Price:    li.TotalPrice,
			Weight:   li.Weight,
		})
	}
	// ties on id fall back to the remaining fields; cmp.Compare orders NaN first
	slices.SortFunc(items, func(a, b keyItem) int {
		return cmp.Or(
			strings.Compare(a.ID, b.ID),
			cmp.Compare(a.Quantity, b.Quantity),
			cmp.Compare(a.Price, b.Price),
			cmp.Compare(a.Weight, b.Weight),
		)
	})

	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte(';')
		}
		it.appendTo(&b)
	}
	return md5Hex(b.String())
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
