package notify

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestComposeProductVariant(t *testing.T) {
	c, err := NewComposer("shop.example.com/")
	require.NoError(t, err)

	msg, err := c.Compose(waitlist.Subscription{ID: "sub-1", Email: "a@x.com", ProductID: "9", VariantID: "11"})
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, RestockSubject, msg.Subject)

	g := newGoldie(t)
	g.Assert(t, "restock_product_variant_html", []byte(msg.HTML))
	g.Assert(t, "restock_product_variant_text", []byte(msg.Text))
}

func TestComposeInventoryItemOnly(t *testing.T) {
	c, err := NewComposer("shop.example.com")
	require.NoError(t, err)

	msg, err := c.Compose(waitlist.Subscription{ID: "sub-2", Email: "b@x.com", InventoryItemID: "77"})
	require.NoError(t, err)

	newGoldie(t).Assert(t, "restock_inventory_item_text", []byte(msg.Text))
}

func TestPurchaseURL(t *testing.T) {
	tests := map[string]struct {
		sub  waitlist.Subscription
		want string
	}{
		"product and variant": {
			sub:  waitlist.Subscription{ProductID: "9", VariantID: "11"},
			want: "https://shop.example.com/products/9?variant=11",
		},
		"product only": {
			sub:  waitlist.Subscription{ProductID: "9"},
			want: "https://shop.example.com/products/9",
		},
		"variant without product": {
			sub:  waitlist.Subscription{VariantID: "11"},
			want: "https://shop.example.com/",
		},
		"inventory item only": {
			sub:  waitlist.Subscription{InventoryItemID: "77"},
			want: "https://shop.example.com/",
		},
		"identifier needing escape": {
			sub:  waitlist.Subscription{ProductID: "blue shirt", VariantID: "a&b"},
			want: "https://shop.example.com/products/blue%20shirt?variant=a%26b",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, PurchaseURL("shop.example.com", tt.sub))
		})
	}
}
