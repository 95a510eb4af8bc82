package reference

import (
	"math"
	"sort"
	"time"
	_ "time/tzdata"
)

// builder accumulates reference rows from any source and produces an Index.
// Duplicate keys are last-write-wins; iteration orders follow first
// appearance in the source.
type builder struct {
	agencies  map[string]Agency
	agencyIDs []string
	routes    map[string]Route
	routeIDs  []string
	trips     map[string]Trip
	tripIDs   []string
	stops     map[string]Stop
	stopIDs   []string
	stopTimes []StopTime
	shapes    map[string][]ShapePoint
	stats     map[string]FileStats
}

func newBuilder() *builder {
	return &builder{
		agencies: make(map[string]Agency),
		routes:   make(map[string]Route),
		trips:    make(map[string]Trip),
		stops:    make(map[string]Stop),
		shapes:   make(map[string][]ShapePoint),
		stats:    make(map[string]FileStats),
	}
}

func (b *builder) addAgency(a Agency) {
	if _, ok := b.agencies[a.ID]; !ok {
		b.agencyIDs = append(b.agencyIDs, a.ID)
	}
	b.agencies[a.ID] = a
}

// addRoute records r with its explicit color still unresolved.
func (b *builder) addRoute(r Route) {
	if _, ok := b.routes[r.ID]; !ok {
		b.routeIDs = append(b.routeIDs, r.ID)
	}
	b.routes[r.ID] = r
}

func (b *builder) addTrip(t Trip) {
	if _, ok := b.trips[t.ID]; !ok {
		b.tripIDs = append(b.tripIDs, t.ID)
	}
	b.trips[t.ID] = t
}

func (b *builder) addStop(s Stop) {
	if _, ok := b.stops[s.ID]; !ok {
		b.stopIDs = append(b.stopIDs, s.ID)
	}
	b.stops[s.ID] = s
}

func (b *builder) addStopTime(st StopTime) {
	b.stopTimes = append(b.stopTimes, st)
}

func (b *builder) addShapePoint(shapeID string, p ShapePoint) {
	b.shapes[shapeID] = append(b.shapes[shapeID], p)
}

func (b *builder) build() *Index {
	x := &Index{
		agencies:     b.agencies,
		routes:       make(map[string]Route, len(b.routes)),
		shortNames:   make(map[string]string),
		trips:        b.trips,
		tripsByRoute: make(map[string][]string),
		stops:        b.stops,
		byStop:       make(map[string][]StopTime),
		byTrip:       make(map[string][]StopTime),
		shapes:       b.shapes,
		location:     time.UTC,
		stats:        b.stats,
	}

	for _, id := range b.routeIDs {
		r := b.routes[id]
		r.Color = ResolveColor(r.Color, r.ShortName, r.AgencyID)
		x.routes[id] = r
		if _, taken := x.shortNames[r.ShortName]; !taken && r.ShortName != "" {
			x.shortNames[r.ShortName] = id
		}
	}

	for _, id := range b.tripIDs {
		t := b.trips[id]
		x.tripsByRoute[t.RouteID] = append(x.tripsByRoute[t.RouteID], id)
	}

	for _, st := range b.stopTimes {
		x.byTrip[st.TripID] = append(x.byTrip[st.TripID], st)
	}
	for tripID, sts := range x.byTrip {
		x.byTrip[tripID] = dedupeBySequence(sts)
	}
	for _, sts := range x.byTrip {
		for _, st := range sts {
			x.byStop[st.StopID] = append(x.byStop[st.StopID], st)
		}
	}
	for stopID, sts := range x.byStop {
		sort.Slice(sts, func(i, j int) bool {
			if sts[i].Arrival != sts[j].Arrival {
				return sts[i].Arrival < sts[j].Arrival
			}
			return sts[i].TripID < sts[j].TripID
		})
		x.byStop[stopID] = sts
	}

	for id, pts := range x.shapes {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Sequence < pts[j].Sequence })
		x.shapes[id] = pts
	}

	region := Bounds{MinLat: math.Inf(1), MinLon: math.Inf(1), MaxLat: math.Inf(-1), MaxLon: math.Inf(-1)}
	for _, id := range b.stopIDs {
		s := b.stops[id]
		if !s.Located {
			continue
		}
		i := len(x.stopList)
		x.stopList = append(x.stopList, s)
		pt := [2]float64{s.Longitude, s.Latitude}
		x.tree.Insert(pt, pt, i)

		region.MinLat = math.Min(region.MinLat, s.Latitude)
		region.MaxLat = math.Max(region.MaxLat, s.Latitude)
		region.MinLon = math.Min(region.MinLon, s.Longitude)
		region.MaxLon = math.Max(region.MaxLon, s.Longitude)
	}
	if len(x.stopList) > 0 {
		x.region = region
	}

	if len(b.agencyIDs) > 0 {
		if loc, err := time.LoadLocation(b.agencies[b.agencyIDs[0]].Timezone); err == nil {
			x.location = loc
		}
	}

	return x
}

// dedupeBySequence orders stop times by sequence, keeping the last row for a
// repeated sequence number.
func dedupeBySequence(sts []StopTime) []StopTime {
	sort.SliceStable(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })
	out := sts[:0]
	for i, st := range sts {
		if i+1 < len(sts) && sts[i+1].StopSequence == st.StopSequence {
			continue
		}
		out = append(out, st)
	}
	return out
}
