package core

import "sort"

// Transfer is a single point-to-point payment instruction produced by
// settlement. From owes To.
type Transfer struct {
	FromID string  `json:"from_id"`
	ToID   string  `json:"to_id"`
	Amount float64 `json:"amount"`
}

type owedParty struct {
	id     string
	amount float64
}

// Settle converts net positions into transfer instructions using greedy
// largest-first matching: the largest remaining debtor pays the largest
// remaining creditor until either side is exhausted.
//
// Parties within SettleTolerance of zero are already settled and skipped.
// Sorting is descending by owed amount and stable, so ties keep the
// position order; callers depend on the resulting transfer order. Greedy
// matching emits at most n-1 transfers and conserves the settled amount,
// though it is not guaranteed to be the theoretical minimum transfer count.
func Settle(positions []NetPosition) []Transfer {
	var debtors, creditors []owedParty
	for _, p := range positions {
		switch {
		case p.Net < -SettleTolerance:
			debtors = append(debtors, owedParty{id: p.UserID, amount: -p.Net})
		case p.Net > SettleTolerance:
			creditors = append(creditors, owedParty{id: p.UserID, amount: p.Net})
		}
	}

	sort.SliceStable(debtors, func(i, j int) bool {
		return debtors[i].amount > debtors[j].amount
	})
	sort.SliceStable(creditors, func(i, j int) bool {
		return creditors[i].amount > creditors[j].amount
	})

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := debtors[i].amount
		if creditors[j].amount < amount {
			amount = creditors[j].amount
		}

		if amount > 0 {
			transfers = append(transfers, Transfer{
				FromID: debtors[i].id,
				ToID:   creditors[j].id,
				Amount: Round2(amount),
			})
		}

		debtors[i].amount -= amount
		creditors[j].amount -= amount

		if debtors[i].amount < SettleTolerance {
			i++
		}
		if creditors[j].amount < SettleTolerance {
			j++
		}
	}

	return transfers
}
