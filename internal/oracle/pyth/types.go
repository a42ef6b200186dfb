package pyth

import (
	"strconv"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// priceFeed is one parsed feed in a Hermes response.
type priceFeed struct {
	ID    string    `json:"id"`
	Price priceData `json:"price"`
}

// priceData is the price component of a feed: a decimal-string mantissa with
// a power-of-ten exponent and the publish time in Unix seconds.
type priceData struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// latestResponse is the envelope returned by /v2/updates/price/latest.
type latestResponse struct {
	Parsed []priceFeed `json:"parsed"`
}

// wsMessage is the envelope for Hermes WebSocket messages.
type wsMessage struct {
	Type      string    `json:"type"`
	PriceFeed priceFeed `json:"price_feed"`
}

// wsSubscribeCmd is the subscribe command sent over the Hermes WebSocket.
type wsSubscribeCmd struct {
	Type     string   `json:"type"`
	IDs      []string `json:"ids"`
	Verbose  bool     `json:"verbose"`
	Binary   bool     `json:"binary"`
	Parsed   bool     `json:"parsed,omitempty"`
	Encoding string   `json:"encoding,omitempty"`
}

// ToQuote converts a parsed feed into a domain quote. Feeds with a negative
// mantissa are rejected by the caller; the mantissa string is parsed as
// unsigned here.
func (f priceFeed) ToQuote() (domain.PriceQuote, error) {
	price, err := strconv.ParseUint(f.Price.Price, 10, 64)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return domain.PriceQuote{
		FeedID:      f.ID,
		Price:       price,
		Expo:        f.Price.Expo,
		PublishedAt: time.Unix(f.Price.PublishTime, 0),
	}, nil
}
