package models

// Route представляет маршрут одного фургона на один день
type Route struct {
	Schedule        VanSchedule       `json:"schedule"`
	Assignments     []RouteAssignment `json:"assignments"`
	TotalDistanceKm float64           `json:"totalDistanceKm"`
	EfficiencyScore float64           `json:"efficiencyScore"`
}

// DayRoutes представляет результат генерации за один день
type DayRoutes struct {
	Date             string  `json:"date"`
	Routes           []Route `json:"routes"`
	RequestsAssigned int     `json:"requestsAssigned"`
	RequestsDeferred int     `json:"requestsDeferred"`
}

// GenerateWeeklyRoutesRequest представляет тело запроса генерации маршрутов.
// Формы админки отправляют days_ahead и числом, и строкой.
type GenerateWeeklyRoutesRequest struct {
	StartDate string  `json:"start_date"`
	DaysAhead FlexInt `json:"days_ahead"`
}

// GenerateWeeklyRoutesResult представляет итог генерации маршрутов
type GenerateWeeklyRoutesResult struct {
	TotalRoutes           int         `json:"totalRoutes"`
	TotalRequestsAssigned int         `json:"totalRequestsAssigned"`
	RoutesByDay           []DayRoutes `json:"routesByDay"`
}

// Envelope представляет общий формат ответа API
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}
