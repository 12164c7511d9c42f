package growth

// RentSchedule prices storage: an account is exempt from rent once it holds
// Minimum(size) lamports.
type RentSchedule struct {
	AccountOverhead     int
	LamportsPerByteYear uint64
	ExemptionYears      uint64
}

// DefaultRent mirrors the usual ledger parameters.
func DefaultRent() RentSchedule {
	return RentSchedule{
		AccountOverhead:     128,
		LamportsPerByteYear: 3480,
		ExemptionYears:      2,
	}
}

// Minimum is the funding required for an account of size bytes.
func (r RentSchedule) Minimum(size int) uint64 {
	if size < 0 {
		size = 0
	}
	return uint64(size+r.AccountOverhead) * r.LamportsPerByteYear * r.ExemptionYears
}
