package reference

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

const (
	agencyTxt = "agency_id,agency_name,agency_url,agency_timezone\n" +
		"978,Dublin Bus,https://www.dublinbus.ie,Europe/Dublin\n" +
		"03,Go-Ahead Ireland,https://www.goaheadireland.ie,Europe/Dublin\n"

	routesTxt = "route_id,agency_id,route_short_name,route_long_name,route_type,route_color\n" +
		"r46a,978,46A,\"Phoenix Park, Dun Laoghaire\",3,\n" +
		"rC1,978,C1,Adamstown - Sandymount,3,\n" +
		"rX7,03,X7,Express,3,FF0000\n" +
		"r155,03,155,Ikea - Bray,3,\n" +
		"broken,978,99,too,many,fields,here\n"

	tripsTxt = "route_id,service_id,trip_id,trip_headsign,direction_id,shape_id\n" +
		"r46a,wk,t1,Dun Laoghaire,0,s1\n" +
		"r46a,wk,t2,Phoenix Park,1,s1\n" +
		"rC1,wk,t3,Sandymount,0,\n"

	stopsTxt = "stop_id,stop_code,stop_name,stop_lat,stop_lon\n" +
		"a,100,O'Connell St,53.3498,-6.2603\n" +
		"b,101,Donnybrook,53.3180,-6.2330\n" +
		"c,102,Bray Main St,53.2000,-6.1000\n" +
		"d,103,Galway,53.2707,-9.0568\n" +
		"n,104,No coordinates,,\n"

	stopTimesTxt = "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"t1,08:00:00,08:00:00,a,1\n" +
		"t1,08:10:00,08:11:00,b,2\n" +
		"t1,08:30:00,08:30:00,c,3\n" +
		"t2,25:10:00,25:10:00,a,1\n" +
		"t2,23:59:00,23:59:00,b,2\n" +
		"t3,07:45:00,07:45:00,a,2\n" +
		"t3,07:30:00,07:30:00,b,1\n" +
		"t3,bad,bad,c,3\n"

	shapesTxt = "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
		"s1,53.3180,-6.2330,2\n" +
		"s1,53.3498,-6.2603,1\n" +
		"s1,53.2000,-6.1000,3\n"
)

func fixtureFS() fstest.MapFS {
	return fstest.MapFS{
		"agency.txt":     {Data: []byte(agencyTxt)},
		"routes.txt":     {Data: []byte(routesTxt)},
		"trips.txt":      {Data: []byte(tripsTxt)},
		"stops.txt":      {Data: []byte(stopsTxt)},
		"stop_times.txt": {Data: []byte(stopTimesTxt)},
		"shapes.txt":     {Data: []byte(shapesTxt)},
	}
}

func loadFixture(t *testing.T) *Index {
	t.Helper()
	idx, err := Load(context.Background(), Sources{FS: fixtureFS()})
	require.NoError(t, err)
	return idx
}
