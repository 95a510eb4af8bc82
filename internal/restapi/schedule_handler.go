package restapi

import "net/http"

func (api *RestAPI) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	stopID := r.PathValue("stopId")

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		api.badRequestResponse(w, r, err.Error())
		return
	}

	sched, err := api.Service.GetStopSchedule(stopID, limit)
	if err != nil {
		api.errorResponse(w, r, err)
		return
	}
	api.sendJSON(w, r, sched)
}
