// Package catalog builds the report-ready, price-bucketed coupon view.
package catalog

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/autoclaim/autoclaim/internal/models"
)

// BucketLabel names a price bucket.
type BucketLabel string

const (
	BucketUnder10 BucketLabel = "<10"
	Bucket10To20  BucketLabel = "10–20"
	BucketFrom20  BucketLabel = ">=20"
)

// Bucket edges, currency-agnostic.
const (
	bucketLowerEdge = 10
	bucketUpperEdge = 20
)

// Labels lists the buckets in display order.
var Labels = []BucketLabel{BucketUnder10, Bucket10To20, BucketFrom20}

// Bucket is one price band of available coupons.
type Bucket struct {
	Label   BucketLabel
	Coupons []models.Coupon
}

// View is the deduplicated, bucketed coupon listing.
type View struct {
	ReferenceDate  string
	TotalAvailable int
	Expired        int
	Buckets        []Bucket // always len(Labels), in Labels order
}

// Bucket returns the coupons filed under label.
func (v View) Bucket(label BucketLabel) []models.Coupon {
	for _, b := range v.Buckets {
		if b.Label == label {
			return b.Coupons
		}
	}
	return nil
}

// LabelFor returns the bucket a price belongs to.
func LabelFor(price decimal.Decimal) BucketLabel {
	switch {
	case price.LessThan(decimal.NewFromInt(bucketLowerEdge)):
		return BucketUnder10
	case price.LessThan(decimal.NewFromInt(bucketUpperEdge)):
		return Bucket10To20
	default:
		return BucketFrom20
	}
}

// Build deduplicates coupons by ID (the last occurrence wins), drops coupons
// whose validity ended before referenceDate, and groups the rest into price
// buckets sorted by valid-from date, then price. It has no side effects.
func Build(coupons []models.Coupon, referenceDate string) View {
	latest := make(map[string]models.Coupon, len(coupons))
	order := make([]string, 0, len(coupons))
	for _, c := range coupons {
		if _, seen := latest[c.CouponID]; !seen {
			order = append(order, c.CouponID)
		}
		latest[c.CouponID] = c
	}

	view := View{
		ReferenceDate: referenceDate,
		Buckets:       make([]Bucket, len(Labels)),
	}
	index := make(map[BucketLabel]int, len(Labels))
	for i, label := range Labels {
		view.Buckets[i] = Bucket{Label: label, Coupons: []models.Coupon{}}
		index[label] = i
	}

	for _, id := range order {
		c := latest[id]
		if c.Expired(referenceDate) {
			view.Expired++
			continue
		}
		i := index[LabelFor(c.Price)]
		view.Buckets[i].Coupons = append(view.Buckets[i].Coupons, c)
		view.TotalAvailable++
	}

	for i := range view.Buckets {
		sortCoupons(view.Buckets[i].Coupons)
	}

	return view
}

func sortCoupons(cs []models.Coupon) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].ValidFrom != cs[j].ValidFrom {
			return cs[i].ValidFrom < cs[j].ValidFrom
		}
		if !cs[i].Price.Equal(cs[j].Price) {
			return cs[i].Price.LessThan(cs[j].Price)
		}
		return cs[i].CouponID < cs[j].CouponID
	})
}
