package book

import "slices"

// match runs one full matching pass over orders and returns the surviving
// orders together with the trades it produced.
//
// Every buy is tried against every sell in book order, buys outer. There is
// no price-time priority: a new order can trade against any crossing order
// regardless of where it rests, and orders that never crossed before may
// cross now. Orders are removed as soon as they are filled, so later pairs
// involving them are skipped.
func match(orders []*Order) ([]*Order, []Trade) {
	var buys, sells []*Order
	for _, o := range orders {
		switch o.Side {
		case Buy:
			buys = append(buys, o)
		case Sell:
			sells = append(sells, o)
		}
	}

	var trades []Trade
	for _, buy := range buys {
		for _, sell := range sells {
			if !crosses(buy, sell) {
				continue
			}
			qty := min(buy.Quantity, sell.Quantity)
			trades = append(trades, Trade{
				Symbol:      buy.Symbol,
				Quantity:    qty,
				Price:       sell.Price,
				SellOrderID: sell.OrderID,
				BuyOrderID:  buy.OrderID,
				Maker:       sell.Client,
				Taker:       buy.Client,
			})
			buy.Quantity -= qty
			sell.Quantity -= qty

			if buy.Quantity == 0 {
				orders = remove(orders, buy)
			}
			if sell.Quantity == 0 {
				orders = remove(orders, sell)
			}
		}
	}

	// Orders created empty never trade; drop them so nothing rests at zero.
	orders = slices.DeleteFunc(orders, func(o *Order) bool { return o.Quantity <= 0 })
	return orders, trades
}

func crosses(buy, sell *Order) bool {
	return buy.Symbol == sell.Symbol &&
		buy.Price >= sell.Price &&
		buy.Quantity > 0 &&
		sell.Quantity > 0
}

// remove drops o (by identity) from orders.
func remove(orders []*Order, o *Order) []*Order {
	i := slices.Index(orders, o)
	if i < 0 {
		return orders
	}
	return slices.Delete(orders, i, i+1)
}
