package tracker

// Item is one order or cart line item. Category may hold zero, one or
// several categories; it serializes as a string when single and as a
// list otherwise.
type Item struct {
	SKU      string
	Name     string
	Category []string
	Price    float64
	Quantity int
}

// OrderTotals carries the optional amounts of an order. Zero fields are
// omitted from the request.
type OrderTotals struct {
	SubTotal float64
	Tax      float64
	Shipping float64
	Discount float64
}

// AddEcommerceItem appends an item to the pending list consumed by the
// next SetEcommerceOrder or SetEcommerceCartUpdate call. Items accumulate
// in call order; quantity defaults to 1.
func (v *Visit) AddEcommerceItem(item Item) error {
	if item.SKU == "" {
		return newValidationError("SKU", "must not be empty")
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	v.items = append(v.items, item)
	return nil
}

// SetEcommerceOrder records a completed order with the pending items. The
// pending list is consumed: it serializes as a JSON array parameter and
// is cleared.
func (v *Visit) SetEcommerceOrder(orderID string, grandTotal float64, totals OrderTotals) error {
	if orderID == "" || orderID == "0" {
		return newValidationError("order id", "must not be empty")
	}

	v.params.Set(keyGoalID, 0)
	v.params.Set(keyOrderID, orderID)
	v.params.Set(keyRevenue, grandTotal)
	if totals.SubTotal != 0 {
		v.params.Set(keyOrderSub, totals.SubTotal)
	}
	if totals.Tax != 0 {
		v.params.Set(keyOrderTax, totals.Tax)
	}
	if totals.Shipping != 0 {
		v.params.Set(keyOrderShip, totals.Shipping)
	}
	if totals.Discount != 0 {
		v.params.Set(keyOrderDisc, totals.Discount)
	}
	v.consumeItems()

	if v.visitor != nil {
		v.visitor.lastOrderTS = v.now().Unix()
		v.params.Set(keyLastOrderTS, v.visitor.lastOrderTS)
	}
	return nil
}

// SetEcommerceCartUpdate reports the current cart value with the pending
// items, without an order id. The pending list is consumed.
func (v *Visit) SetEcommerceCartUpdate(grandTotal float64) {
	v.params.Set(keyGoalID, 0)
	v.params.Set(keyRevenue, grandTotal)
	v.consumeItems()
}

func (v *Visit) consumeItems() {
	if len(v.items) == 0 {
		return
	}
	tuples := make([][]any, 0, len(v.items))
	for _, it := range v.items {
		tuples = append(tuples, itemTuple(it))
	}
	v.params.Set(keyOrderItems, tuples)
	v.items = nil
}

// itemTuple renders an item in the collector's positional form:
// [sku, name, category, price, quantity].
func itemTuple(it Item) []any {
	var category any
	switch len(it.Category) {
	case 0:
		category = ""
	case 1:
		category = it.Category[0]
	default:
		category = it.Category
	}
	return []any{it.SKU, it.Name, category, it.Price, it.Quantity}
}
