package view

import (
	"cmp"

	"github.com/rickgao/stocksync/internal/stock"
)

func listPrice(e *stock.Entry) int64 {
	if e.ListPrice == nil {
		return -1
	}
	return *e.ListPrice
}

func entrySorts[T any](base func(T) *stock.Entry) map[string]func(a, b T) int {
	return map[string]func(a, b T) int{
		"id":         compareBy(func(v T) int64 { return base(v).ID }),
		"bought":     compareBy(func(v T) int64 { return base(v).Bought }),
		"list_price": compareBy(func(v T) int64 { return listPrice(base(v)) }),
		"status":     compareBy(func(v T) string { return string(base(v).Status) }),
		"owned":      compareBy(func(v T) int64 { return base(v).Owned }),
		"created_at": func(a, b T) int { return base(a).CreatedAt.Compare(base(b).CreatedAt) },
		"updated_at": func(a, b T) int { return base(a).UpdatedAt.Compare(base(b).UpdatedAt) },
		"profit": compareBy(func(v T) int64 {
			e := base(v)
			if e.ListPrice == nil {
				return 0
			}
			return *e.ListPrice - e.Bought
		}),
	}
}

// ItemFields projects stock items.
func ItemFields() Fields[stock.Item] {
	sorts := entrySorts(func(i stock.Item) *stock.Entry { return &i.Entry })
	sorts["name"] = compareBy(stock.Item.Name)
	return Fields[stock.Item]{
		Name:       stock.Item.Name,
		Status:     func(i stock.Item) string { return string(i.Status) },
		Sorts:      sorts,
		DefaultKey: "list_price",
		DefaultDir: Desc,
	}
}

// RivenFields projects stock rivens. Search matches the weapon name.
func RivenFields() Fields[stock.Riven] {
	sorts := entrySorts(func(r stock.Riven) *stock.Entry { return &r.Entry })
	sorts["name"] = compareBy(stock.Riven.Name)
	sorts["weapon_name"] = compareBy(func(r stock.Riven) string { return r.WeaponName })
	sorts["mastery_rank"] = compareBy(func(r stock.Riven) int64 { return r.MasteryRank })
	sorts["re_rolls"] = compareBy(func(r stock.Riven) int64 { return r.ReRolls })
	sorts["rank"] = func(a, b stock.Riven) int { return cmp.Compare(a.Rank, b.Rank) }
	return Fields[stock.Riven]{
		Name:       func(r stock.Riven) string { return r.WeaponName },
		Status:     func(r stock.Riven) string { return string(r.Status) },
		Sorts:      sorts,
		DefaultKey: "list_price",
		DefaultDir: Desc,
	}
}
