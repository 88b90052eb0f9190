package models

// CouponValidity is the answer to a validity query. RemainingTime is in
// milliseconds. Both counters are zero for any status other than VALID.
type CouponValidity struct {
	Status          CouponStatus `json:"status"`
	RemainingUsages int64        `json:"remainingUsages"`
	RemainingTime   int64        `json:"remainingTime"`
}

// Valid reports whether the status is VALID.
func (v CouponValidity) Valid() bool { return v.Status == StatusValid }

// UsageBudget holds the type-specific validity rules so that the registry
// never switches on CouponType itself.
type UsageBudget interface {
	// Expired reports whether a VALID coupon has run out of time.
	Expired(rc *RegisteredCoupon, nowMillis int64) bool
	// Exhausted reports whether a coupon has used up its count budget.
	Exhausted(rc *RegisteredCoupon) bool
	// Remaining reports what a VALID coupon has left.
	Remaining(rc *RegisteredCoupon, nowMillis int64) CouponValidity
}

// Budget returns the usage rules for the coupon type.
func (t CouponType) Budget() UsageBudget {
	switch t {
	case CouponTypeDiscrete:
		return discreteBudget{}
	case CouponTypePeriodic:
		return periodicBudget{}
	default:
		return noBudget{}
	}
}

// discreteBudget: MaxUsage is a number of uses.
type discreteBudget struct{}

func (discreteBudget) Expired(*RegisteredCoupon, int64) bool { return false }

func (discreteBudget) Exhausted(rc *RegisteredCoupon) bool {
	return rc.UsagesCounter >= rc.MaxUsage
}

func (discreteBudget) Remaining(rc *RegisteredCoupon, _ int64) CouponValidity {
	left := rc.MaxUsage - rc.UsagesCounter
	if left < 0 {
		left = 0
	}
	return CouponValidity{Status: StatusValid, RemainingUsages: left}
}

// periodicBudget: MaxUsage is a validity window in milliseconds that
// starts at first use.
type periodicBudget struct{}

func (periodicBudget) Expired(rc *RegisteredCoupon, nowMillis int64) bool {
	return rc.FirstUseTimestamp > 0 && nowMillis >= rc.FirstUseTimestamp+rc.MaxUsage
}

func (periodicBudget) Exhausted(*RegisteredCoupon) bool { return false }

func (periodicBudget) Remaining(rc *RegisteredCoupon, nowMillis int64) CouponValidity {
	if rc.FirstUseTimestamp == 0 {
		return CouponValidity{Status: StatusValid, RemainingTime: rc.MaxUsage}
	}
	left := rc.MaxUsage - (nowMillis - rc.FirstUseTimestamp)
	if left < 0 {
		left = 0
	}
	return CouponValidity{Status: StatusValid, RemainingTime: left}
}

type noBudget struct{}

func (noBudget) Expired(*RegisteredCoupon, int64) bool { return true }
func (noBudget) Exhausted(*RegisteredCoupon) bool      { return true }
func (noBudget) Remaining(*RegisteredCoupon, int64) CouponValidity {
	return CouponValidity{Status: StatusConsumed}
}
