package source

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"silverscout/internal/ratelimit"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func serve(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.RequestURI()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const goldSilverPage1 = `<html><body><ul>
<li class="ajax_block_product">
  <h5><a href="https://goldsilver.be/nl/maple">Maple Leaf 1 oz</a></h5>
  <span class="price product-price">40,00&nbsp;€</span>
  <span class="availability">In&nbsp;voorraad</span>
</li>
<li class="ajax_block_product">
  <h5><a href="https://goldsilver.be/nl/krugerrand">Krugerrand 1 oz</a></h5>
  <span class="price product-price">44,10 €</span>
  <span class="availability">Niet op voorraad</span>
</li>
<li class="ajax_block_product">
  <h5><a href="https://goldsilver.be/nl/kangaroo">Kangaroo 1 oz</a></h5>
  <span class="price product-price">Prijs op aanvraag</span>
  <span class="availability">In voorraad</span>
</li>
</ul>
<a href="/cat?orderby=price&amp;p=2">2</a>
</body></html>`

const goldSilverPage2 = `<html><body><ul>
<li class="ajax_block_product">
  <h5><a href="https://goldsilver.be/nl/philharmoniker">Philharmoniker 1 oz</a></h5>
  <span class="price product-price">1.041,50 €</span>
  <span class="availability">Product is beschikbaar met verschillende opties</span>
</li>
</ul></body></html>`

func TestGoldSilver_FetchesAllPages(t *testing.T) {
	srv := serve(t, map[string]string{
		"/cat?orderby=price":     goldSilverPage1,
		"/cat?orderby=price&p=2": goldSilverPage2,
	})
	gate := &ratelimit.MinInterval{}
	g := NewGoldSilver(Config{BaseURL: srv.URL + "/cat?orderby=price", Client: srv.Client(), Gate: gate})
	require.Equal(t, "goldsilver_be", g.Name())

	got, err := g.Fetch(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "Maple Leaf 1 oz", got[0].Name)
	require.Equal(t, "https://goldsilver.be/nl/maple", got[0].URL)
	require.True(t, got[0].TotalPrice.Equal(d("40")))
	require.True(t, got[0].PricePerUnit.Equal(d("40")))
	require.True(t, got[0].UnitQuantity.Equal(d("1")))

	require.Equal(t, "Philharmoniker 1 oz", got[1].Name)
	require.True(t, got[1].TotalPrice.Equal(d("1041.5")))
	for _, p := range got {
		require.NoError(t, p.Validate())
	}
}

func TestGoldSilver_FailedPageFailsSource(t *testing.T) {
	srv := serve(t, map[string]string{"/cat?orderby=price": goldSilverPage1})
	g := NewGoldSilver(Config{BaseURL: srv.URL + "/cat?orderby=price", Client: srv.Client()})
	_, err := g.Fetch(t.Context())
	require.ErrorContains(t, err, "page 2")
}

func TestLastPage(t *testing.T) {
	require.Equal(t, 1, lastPage([]byte(`<a href="/x">none</a>`)))
	require.Equal(t, 3, lastPage([]byte(`<a href="?p=2">2</a><a href="?id=1&amp;p=3">3</a><a href="&p=1">1</a>`)))
}

const argentorPage = `<html><body>
<div class="product-item">
  <a class="product-item-link" href="https://www.argentorshop.be/nl/monsterbox">Monsterbox 500 x 1 troy ounce Maple Leaf</a>
  <span class="price">€ 17.250,00</span>
  <span class="text-green-700"> Op voorraad </span>
</div>
<div class="product-item">
  <a class="product-item-link" href="https://www.argentorshop.be/nl/kilobar">Zilverbaar 1 kilogram</a>
  <span class="price">€ 1.100,10</span>
  <span class="text-green-700">Op voorraad</span>
</div>
<div class="product-item">
  <a class="product-item-link" href="https://www.argentorshop.be/nl/lepel">Zilveren lepel</a>
  <span class="price">€ 20,00</span>
  <span class="text-green-700">Op voorraad</span>
</div>
<div class="product-item">
  <a class="product-item-link" href="https://www.argentorshop.be/nl/britannia">Britannia 1 troy ounce</a>
  <span class="price">€ 41,00</span>
  <span class="text-red-700">Uitverkocht</span>
</div>
</body></html>`

func TestArgentorShop_Fetch(t *testing.T) {
	srv := serve(t, map[string]string{"/munten/": argentorPage})
	a := NewArgentorShop(Config{BaseURL: srv.URL + "/munten/", Client: srv.Client()})
	require.Equal(t, "argentorshop_be", a.Name())

	got, err := a.Fetch(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.True(t, got[0].UnitQuantity.Equal(d("500")))
	require.True(t, got[0].TotalPrice.Equal(d("17250")))
	require.True(t, got[0].PricePerUnit.Equal(d("34.5")))

	require.True(t, got[1].UnitQuantity.Equal(d("32.15")))
	require.True(t, got[1].PricePerUnit.Equal(d("34.22")))
}

const hollandGoldPage = `<html><head>
<script type="application/ld+json">{"@type":"Organization","name":"Holland Gold"}</script>
<script type="application/ld+json">[{"@type":"BreadcrumbList"},{"@type":"ItemList","itemListElement":[
  {"@type":"ListItem","position":1,"item":{"@type":"Product","name":"Britannia 1 troy ounce zilveren munt",
    "offers":{"@type":"Offer","price":"38.95","availability":"https://schema.org/InStock","url":"https://www.hollandgold.nl/britannia.html"}}},
  {"@type":"Product","name":"10 troy ounce zilverbaar",
    "offers":{"@type":"Offer","price":355.47,"availability":"InStock","url":"https://www.hollandgold.nl/baar-10.html"}},
  {"@type":"Product","name":"Kookaburra 1 troy ounce",
    "offers":{"@type":"Offer","price":41.10,"availability":"https://schema.org/OutOfStock","url":"https://www.hollandgold.nl/kookaburra.html"}},
  {"@type":"Product","name":"Zilveren medaille",
    "offers":{"@type":"Offer","price":12.00,"availability":"InStock","url":"https://www.hollandgold.nl/medaille.html"}}
]}]</script>
<script type="application/ld+json">not json</script>
</head><body></body></html>`

func TestHollandGold_Fetch(t *testing.T) {
	srv := serve(t, map[string]string{"/munten.html": hollandGoldPage})
	h := NewHollandGold(Config{BaseURL: srv.URL + "/munten.html", Client: srv.Client()})
	require.Equal(t, "hollandgold_nl", h.Name())

	got, err := h.Fetch(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "https://www.hollandgold.nl/britannia.html", got[0].URL)
	require.True(t, got[0].PricePerUnit.Equal(d("38.95")))

	require.True(t, got[1].UnitQuantity.Equal(d("10")))
	require.True(t, got[1].PricePerUnit.Equal(d("35.55")))
	require.True(t, got[1].TotalPrice.Equal(d("355.47")))
}

func TestFetch_HTTPErrorIsReturned(t *testing.T) {
	srv := serve(t, map[string]string{})
	h := NewHollandGold(Config{BaseURL: srv.URL + "/gone", Client: srv.Client()})
	_, err := h.Fetch(t.Context())
	require.ErrorContains(t, err, "404")
}

func TestNew_Registry(t *testing.T) {
	for _, name := range Names {
		s, err := New(name, Config{})
		require.NoError(t, err)
		require.Equal(t, name, s.Name())
	}
	_, err := New("ebay", Config{})
	require.Error(t, err)
}
