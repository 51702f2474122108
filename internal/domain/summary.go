package domain

// SalesSummary — производное представление выручки по завершённым заказам.
type SalesSummary struct {
	TotalSalesMinor        int64
	TotalOrders            int64
	AverageOrderValueMinor float64
	// CountsByStatus — количество заказов в каждом статусе.
	CountsByStatus map[OrderStatus]int64
}

// Summarize считает сводку продаж. Выручка учитывает только completed-заказы.
func Summarize(orders []Order) SalesSummary {
	summary := SalesSummary{CountsByStatus: make(map[OrderStatus]int64, len(OrderStatuses))}
	for _, status := range OrderStatuses {
		summary.CountsByStatus[status] = 0
	}

	for _, order := range orders {
		summary.CountsByStatus[order.Status]++
		if order.Status != OrderStatusCompleted {
			continue
		}
		summary.TotalSalesMinor += order.TotalAmountMinor
		summary.TotalOrders++
	}

	if summary.TotalOrders > 0 {
		summary.AverageOrderValueMinor = float64(summary.TotalSalesMinor) / float64(summary.TotalOrders)
	}
	return summary
}
