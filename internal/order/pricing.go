package order

// DeliveryPricer computes the delivery charge at checkout. The engine ships
// one canonical formula; distance comes from the out-of-scope geocoding
// collaborator.
type DeliveryPricer interface {
	Charge(distanceKm, discountedAmount float64) float64
}

// DistancePricer charges base + perKm * distance, waived entirely once the
// discounted order amount reaches FreeAbove.
type DistancePricer struct {
	Base      float64
	PerKm     float64
	FreeAbove float64
}

var _ DeliveryPricer = DistancePricer{}

func (p DistancePricer) Charge(distanceKm, discountedAmount float64) float64 {
	if p.FreeAbove > 0 && discountedAmount >= p.FreeAbove {
		return 0
	}
	if distanceKm < 0 {
		distanceKm = 0
	}
	return p.Base + p.PerKm*distanceKm
}
