package strategy

import "time"

// OrderKind 区分平仓单与双边报价单。
type OrderKind string

const (
	KindClose OrderKind = "close"
	KindBid   OrderKind = "bid"
	KindAsk   OrderKind = "ask"
)

// OrderSide 表示下单方向。
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus 表示计划内订单的状态。
type OrderStatus string

const (
	// StatusPlanned 表示订单将被提交。
	StatusPlanned OrderStatus = "planned"
	// StatusSkipped 表示订单名义价值低于最小门槛，仅记录不提交。
	StatusSkipped OrderStatus = "skipped_below_minimum"
)

// Order 为计划中的单笔委托。
type Order struct {
	Symbol      string      `json:"symbol"`
	Kind        OrderKind   `json:"kind"`
	Side        OrderSide   `json:"side"`
	Price       float64     `json:"price"`
	Size        float64     `json:"size"`
	Notional    float64     `json:"notional"`
	ReduceOnly  bool        `json:"reduce_only"`
	TimeInForce string      `json:"time_in_force"`
	Status      OrderStatus `json:"status"`
	Reason      string      `json:"reason,omitempty"`
}

// Plan 为一个周期的完整订单计划，由快照与顾问参数确定性推导。
type Plan struct {
	Orders      []Order   `json:"orders"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Submittable 返回将被提交的订单。
func (p Plan) Submittable() []Order {
	orders := make([]Order, 0, len(p.Orders))
	for _, order := range p.Orders {
		if order.Status == StatusPlanned {
			orders = append(orders, order)
		}
	}
	return orders
}

// Skipped 返回因低于最小名义价值而被丢弃的订单。
func (p Plan) Skipped() []Order {
	orders := make([]Order, 0)
	for _, order := range p.Orders {
		if order.Status == StatusSkipped {
			orders = append(orders, order)
		}
	}
	return orders
}
