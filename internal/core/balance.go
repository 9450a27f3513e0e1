package core

import "github.com/shopspring/decimal"

// SettleTolerance absorbs floating-point accumulation error: positions
// within this distance of zero are considered settled.
const SettleTolerance = 0.01

// NetPosition is one payer's running balance against the group:
// amount paid minus the fair share owed.
type NetPosition struct {
	UserID string
	Paid   float64
	Net    float64
	// Member is false for ex-members: payers who appear in the expense
	// set but no longer hold a membership.
	Member bool
}

// GroupBalances is the derived settlement view of a group. It is never
// persisted; it is recomputed from current expenses and memberships.
type GroupBalances struct {
	Total          float64       `json:"total"`
	SharePerPerson float64       `json:"share_per_person"`
	Positions      []NetPosition `json:"-"`
	Transfers      []Transfer    `json:"transfers"`
}

// ComputeBalances derives every party's net position from the group's
// expense set and its current memberships.
//
// The fair share is total / current member count. Current members owe a
// share whether or not they paid anything. An ex-member keeps full credit
// for past payments but is never charged a share: leaving the group does
// not retroactively erase contributions, and no new obligations accrue.
//
// Positions are ordered current members first (input order), then
// ex-member payers in order of first appearance in the expense set. The
// ordering is part of the contract: Settle breaks ties by it.
func ComputeBalances(expenses []Expense, memberIDs []string) GroupBalances {
	var total float64
	for _, e := range expenses {
		total += e.Amount
	}

	var share float64
	if len(memberIDs) > 0 {
		share = total / float64(len(memberIDs))
	}

	paid := make(map[string]float64, len(memberIDs))
	order := make([]string, 0, len(memberIDs))
	current := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		paid[id] = 0
		current[id] = true
		order = append(order, id)
	}
	for _, e := range expenses {
		if _, seen := paid[e.PaidByID]; !seen {
			paid[e.PaidByID] = 0
			order = append(order, e.PaidByID)
		}
		paid[e.PaidByID] += e.Amount
	}

	positions := make([]NetPosition, 0, len(order))
	for _, id := range order {
		p := NetPosition{UserID: id, Paid: paid[id], Member: current[id]}
		if p.Member {
			p.Net = p.Paid - share
		} else {
			p.Net = p.Paid
		}
		positions = append(positions, p)
	}

	return GroupBalances{
		Total:          Round2(total),
		SharePerPerson: Round2(share),
		Positions:      positions,
		Transfers:      Settle(positions),
	}
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
