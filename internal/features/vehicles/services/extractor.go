package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"yad2watch/internal/features/vehicles/models"
)

// ErrParse is returned when a page carries no usable listing data block.
// Callers treat it like a transport error: retryable, never fatal.
var ErrParse = errors.New("listing data block not found or malformed")

const listingBaseURL = "https://www.yad2.co.il/vehicles/item/"

// feedGroups are the Yad2 result tiers, walked in the site's given order.
var feedGroups = []string{"private", "commercial", "solo", "platinum", "boost"}

// nextData mirrors the relevant slice of the __NEXT_DATA__ payload. The
// shape is decoded strictly so that structural drift surfaces as ErrParse
// instead of errors deep in traversal.
type nextData struct {
	Props struct {
		PageProps struct {
			DehydratedState struct {
				Queries []struct {
					State struct {
						Data json.RawMessage `json:"data"`
					} `json:"state"`
				} `json:"queries"`
			} `json:"dehydratedState"`
		} `json:"pageProps"`
	} `json:"props"`
}

type feedData struct {
	Pagination struct {
		Pages int `json:"pages"`
	} `json:"pagination"`
	Groups map[string]json.RawMessage `json:"-"`
}

// feedItem is the explicit per-listing schema. Items that do not decode
// against it are dropped individually rather than failing the page.
type feedItem struct {
	Token    string `json:"token"`
	Customer struct {
		AgencyName string `json:"agencyName"`
	} `json:"customer"`
	Price        int       `json:"price"`
	Km           int       `json:"km"`
	Hand         textField `json:"hand"`
	Manufacturer textField `json:"manufacturer"`
	Model        textField `json:"model"`
	SubModel     textField `json:"subModel"`
	VehicleDates struct {
		YearOfProduction int `json:"yearOfProduction"`
	} `json:"vehicleDates"`
	Address struct {
		City textField `json:"city"`
		Area textField `json:"area"`
	} `json:"address"`
	Images []imageField `json:"images"`
}

// textField tolerates the feed's two spellings of labelled values:
// {"text": "..."} objects and bare scalars.
type textField struct {
	Text string
}

func (t *textField) UnmarshalJSON(b []byte) error {
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		t.Text = obj.Text
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		t.Text = s
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		t.Text = n.String()
		return nil
	}

	t.Text = ""
	return nil
}

// imageField tolerates image entries as {"src": ...}, {"url": ...} or a
// bare URL string.
type imageField struct {
	URL string
}

func (i *imageField) UnmarshalJSON(b []byte) error {
	var obj struct {
		Src string `json:"src"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(b, &obj); err == nil && (obj.Src != "" || obj.URL != "") {
		if obj.Src != "" {
			i.URL = obj.Src
		} else {
			i.URL = obj.URL
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		i.URL = s
		return nil
	}

	i.URL = ""
	return nil
}

// Extract locates the embedded __NEXT_DATA__ block in a raw page body and
// produces the listings it carries, preserving the site's order across all
// feed groups. It is pure and restartable: extracting the same body twice
// yields identical results.
func Extract(body string) (*models.FeedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	raw := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").Text())
	if raw == "" {
		return nil, ErrParse
	}

	var data nextData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	queries := data.Props.PageProps.DehydratedState.Queries
	if len(queries) == 0 || len(queries[0].State.Data) == 0 {
		return nil, ErrParse
	}

	feed, err := decodeFeedData(queries[0].State.Data)
	if err != nil {
		return nil, err
	}

	page := &models.FeedPage{TotalPages: feed.Pagination.Pages}
	for _, group := range feedGroups {
		rawItems, ok := feed.Groups[group]
		if !ok {
			continue
		}

		var items []json.RawMessage
		if err := json.Unmarshal(rawItems, &items); err != nil {
			continue
		}

		for _, rawItem := range items {
			var item feedItem
			if err := json.Unmarshal(rawItem, &item); err != nil {
				// Malformed item, not a malformed page.
				continue
			}
			if item.Token == "" {
				// Without a token the listing cannot be deduplicated.
				continue
			}
			page.Listings = append(page.Listings, toListing(item))
		}
	}

	return page, nil
}

func decodeFeedData(raw json.RawMessage) (*feedData, error) {
	var feed feedData
	if err := json.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var groups map[string]json.RawMessage
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	feed.Groups = groups

	return &feed, nil
}

func toListing(item feedItem) models.Listing {
	seller := models.SellerPrivate
	if item.Customer.AgencyName != "" {
		seller = models.SellerDealer
	}

	area := item.Address.City.Text
	if area == "" {
		area = item.Address.Area.Text
	}

	img := ""
	if len(item.Images) > 0 {
		img = item.Images[0].URL
	}

	return models.Listing{
		Token:        item.Token,
		Seller:       seller,
		Manufacturer: item.Manufacturer.Text,
		Model:        item.Model.Text,
		SubModel:     item.SubModel.Text,
		Price:        item.Price,
		Year:         item.VehicleDates.YearOfProduction,
		Mileage:      item.Km,
		Hand:         item.Hand.Text,
		Area:         area,
		URL:          listingBaseURL + item.Token,
		ImageURL:     img,
	}
}
