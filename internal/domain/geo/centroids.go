package geo

import (
	"sort"

	"github.com/okian/photodispatch/internal/domain/model"
)

// CityCentre is used for neighborhoods missing from the table.
var CityCentre = model.Point{Lat: -25.4284, Lng: -49.2733}

// centroids maps Curitiba neighborhoods to an approximate centre point.
var centroids = map[string]model.Point{
	"Abranches":           {Lat: -25.3589, Lng: -49.2319},
	"Água Verde":          {Lat: -25.4593, Lng: -49.2889},
	"Ahú":                 {Lat: -25.4057, Lng: -49.2736},
	"Alto Boqueirão":      {Lat: -25.5332, Lng: -49.2556},
	"Alto da Glória":      {Lat: -25.4190, Lng: -49.2638},
	"Alto da XV":          {Lat: -25.4310, Lng: -49.2557},
	"Atuba":               {Lat: -25.3857, Lng: -49.2135},
	"Augusta":             {Lat: -25.4856, Lng: -49.3364},
	"Bacacheri":           {Lat: -25.3956, Lng: -49.2393},
	"Bairro Alto":         {Lat: -25.4182, Lng: -49.2085},
	"Barreirinha":         {Lat: -25.3649, Lng: -49.2541},
	"Batel":               {Lat: -25.4414, Lng: -49.2847},
	"Bigorrilho":          {Lat: -25.4328, Lng: -49.3005},
	"Boa Vista":           {Lat: -25.3845, Lng: -49.2520},
	"Bom Retiro":          {Lat: -25.4150, Lng: -49.2789},
	"Boqueirão":           {Lat: -25.5009, Lng: -49.2372},
	"Butiatuvinha":        {Lat: -25.4093, Lng: -49.3496},
	"Cabral":              {Lat: -25.4116, Lng: -49.2568},
	"Cachoeira":           {Lat: -25.3346, Lng: -49.2657},
	"Cajuru":              {Lat: -25.4552, Lng: -49.2155},
	"Campina do Siqueira": {Lat: -25.4475, Lng: -49.3136},
	"Campo Comprido":      {Lat: -25.4418, Lng: -49.3516},
	"Campo de Santana":    {Lat: -25.5879, Lng: -49.3197},
	"Capão da Imbuia":     {Lat: -25.4431, Lng: -49.2064},
	"Capão Raso":          {Lat: -25.5015, Lng: -49.2934},
	"Cascatinha":          {Lat: -25.4077, Lng: -49.3183},
	"Caximba":             {Lat: -25.6179, Lng: -49.3283},
	"Centro":              {Lat: -25.4284, Lng: -49.2733},
	"Centro Cívico":       {Lat: -25.4172, Lng: -49.2694},
	"Cidade Industrial":   {Lat: -25.5042, Lng: -49.3333},
	"Cristo Rei":          {Lat: -25.4344, Lng: -49.2464},
	"Fanny":               {Lat: -25.4851, Lng: -49.2676},
	"Fazendinha":          {Lat: -25.4745, Lng: -49.3164},
	"Ganchinho":           {Lat: -25.5683, Lng: -49.2698},
	"Guabirotuba":         {Lat: -25.4627, Lng: -49.2367},
	"Guaíra":              {Lat: -25.4735, Lng: -49.2737},
	"Hauer":               {Lat: -25.4800, Lng: -49.2373},
	"Hugo Lange":          {Lat: -25.4150, Lng: -49.2552},
	"Jardim Botânico":     {Lat: -25.4429, Lng: -49.2386},
	"Jardim das Américas": {Lat: -25.4608, Lng: -49.2201},
	"Jardim Social":       {Lat: -25.4184, Lng: -49.2275},
	"Juvevê":              {Lat: -25.4168, Lng: -49.2635},
	"Lamenha Pequena":     {Lat: -25.3670, Lng: -49.3090},
	"Lindóia":             {Lat: -25.4839, Lng: -49.2718},
	"Mercês":              {Lat: -25.4221, Lng: -49.2945},
	"Mossunguê":           {Lat: -25.4468, Lng: -49.3444},
	"Novo Mundo":          {Lat: -25.4952, Lng: -49.2828},
	"Orleans":             {Lat: -25.4331, Lng: -49.3789},
	"Parolin":             {Lat: -25.4628, Lng: -49.2662},
	"Pilarzinho":          {Lat: -25.3949, Lng: -49.2882},
	"Pinheirinho":         {Lat: -25.5262, Lng: -49.2952},
	"Portão":              {Lat: -25.4746, Lng: -49.3013},
	"Prado Velho":         {Lat: -25.4542, Lng: -49.2562},
	"Rebouças":            {Lat: -25.4503, Lng: -49.2657},
	"Riviera":             {Lat: -25.4880, Lng: -49.3700},
	"Santa Cândida":       {Lat: -25.3589, Lng: -49.2319},
	"Santa Felicidade":    {Lat: -25.4077, Lng: -49.3338},
	"Santa Quitéria":      {Lat: -25.4578, Lng: -49.3101},
	"Santo Inácio":        {Lat: -25.4284, Lng: -49.3400},
	"São Braz":            {Lat: -25.4042, Lng: -49.3622},
	"São Francisco":       {Lat: -25.4220, Lng: -49.2820},
	"São João":            {Lat: -25.3980, Lng: -49.3243},
	"São Lourenço":        {Lat: -25.3854, Lng: -49.2693},
	"São Miguel":          {Lat: -25.5140, Lng: -49.3600},
	"Seminário":           {Lat: -25.4497, Lng: -49.3005},
	"Sítio Cercado":       {Lat: -25.5458, Lng: -49.2625},
	"Taboão":              {Lat: -25.3688, Lng: -49.2754},
	"Tarumã":              {Lat: -25.4258, Lng: -49.2144},
	"Tatuquara":           {Lat: -25.5866, Lng: -49.3377},
	"Tingui":              {Lat: -25.3787, Lng: -49.2274},
	"Uberaba":             {Lat: -25.4870, Lng: -49.2089},
	"Umbará":              {Lat: -25.5786, Lng: -49.2711},
	"Vila Izabel":         {Lat: -25.4567, Lng: -49.2934},
	"Vista Alegre":        {Lat: -25.4140, Lng: -49.3041},
	"Xaxim":               {Lat: -25.5186, Lng: -49.2541},
}

var centroidIndex = func() map[string]string {
	idx := make(map[string]string, len(centroids))
	for name := range centroids {
		idx[ClusterKey(name)] = name
	}
	return idx
}()

// LookupCentroid returns the centre of a known neighborhood.
func LookupCentroid(neighborhood string) (model.Point, bool) {
	name, ok := centroidIndex[ClusterKey(neighborhood)]
	if !ok {
		return model.Point{}, false
	}
	return centroids[name], true
}

// Centroid returns the neighborhood centre, or the city centre when the
// name is unknown. Every location therefore maps to some point.
func Centroid(neighborhood string) model.Point {
	if p, ok := LookupCentroid(neighborhood); ok {
		return p
	}
	return CityCentre
}

// Neighborhoods lists the table's display names in order.
func Neighborhoods() []string {
	names := make([]string, 0, len(centroids))
	for name := range centroids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
