package content

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

const (
	defaultOpenMeteo = "https://api.open-meteo.com/v1"
	forecastDays     = 7
	extendedDays     = 3
)

// WMOCodes names the WMO weather interpretation codes Open-Meteo returns.
var WMOCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// Condition returns the WMO name for code, or "Unknown".
func Condition(code int) string {
	if name, ok := WMOCodes[code]; ok {
		return name
	}
	return "Unknown"
}

var compass = []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// WindDirection converts degrees to a 16-point compass direction.
func WindDirection(deg float64) string {
	idx := int(math.Round(deg/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compass[idx]
}

func toFahrenheit(c float64) float64 { return round1(c*9/5 + 32) }

func toMPH(kmh float64) float64 { return round1(kmh * 0.621371) }

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// DayForecast is one day of the forecast.
type DayForecast struct {
	Date       string
	HighC      float64
	LowC       float64
	Condition  string
	PrecipProb int
	Sunrise    string
	Sunset     string
}

// Forecast is the current conditions plus the daily outlook for a location.
type Forecast struct {
	Location   string
	TempC      float64
	FeelsLikeC float64
	Humidity   int
	WindMPH    float64
	WindDir    string
	Condition  string
	UVIndex    *float64
	Daily      []DayForecast
}

// OpenMeteoWeather fetches forecasts from Open-Meteo, which needs no key.
type OpenMeteoWeather struct {
	BaseURL string
	Client  *http.Client
	Logger  *log.Logger
}

func (w *OpenMeteoWeather) Fetch(ctx context.Context, req Request) (Section, error) {
	locs := req.Settings.WeatherLocations
	var sec Section
	var forecasts []Forecast
	for _, loc := range locs {
		f, err := w.forecast(ctx, loc)
		if err != nil {
			if w.Logger != nil {
				w.Logger.Printf("warn: open-meteo %s: %v", loc.Name, err)
			}
			sec.Errors = append(sec.Errors, SourceError{Source: "open-meteo:" + loc.Name, Category: string(CategoryWeather), Message: err.Error()})
			continue
		}
		forecasts = append(forecasts, f)
	}
	if len(forecasts) == 0 && len(sec.Errors) > 0 {
		return Section{}, fmt.Errorf("no forecast for %d locations", len(locs))
	}
	sec.Text = FormatWeather(forecasts)
	return sec, nil
}

type openMeteoResponse struct {
	Current struct {
		Temperature   float64  `json:"temperature_2m"`
		Apparent      *float64 `json:"apparent_temperature"`
		Humidity      int      `json:"relative_humidity_2m"`
		WeatherCode   int      `json:"weather_code"`
		WindSpeed     float64  `json:"wind_speed_10m"`
		WindDirection float64  `json:"wind_direction_10m"`
		UVIndex       *float64 `json:"uv_index"`
	} `json:"current"`
	Daily struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weather_code"`
		Max         []float64 `json:"temperature_2m_max"`
		Min         []float64 `json:"temperature_2m_min"`
		PrecipProb  []int     `json:"precipitation_probability_max"`
		Sunrise     []string  `json:"sunrise"`
		Sunset      []string  `json:"sunset"`
	} `json:"daily"`
}

func (w *OpenMeteoWeather) forecast(ctx context.Context, loc briefing.WeatherLocation) (Forecast, error) {
	base := w.BaseURL
	if base == "" {
		base = defaultOpenMeteo
	}
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	q.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,weather_code,wind_speed_10m,wind_direction_10m,uv_index")
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max,sunrise,sunset")
	q.Set("temperature_unit", "celsius")
	q.Set("wind_speed_unit", "kmh")
	q.Set("timezone", "auto")
	q.Set("forecast_days", fmt.Sprint(forecastDays))

	var body openMeteoResponse
	if err := getJSON(ctx, w.Client, strings.TrimRight(base, "/")+"/forecast?"+q.Encode(), nil, &body); err != nil {
		return Forecast{}, err
	}
	cur := body.Current
	f := Forecast{
		Location:   loc.Name,
		TempC:      cur.Temperature,
		FeelsLikeC: cur.Temperature,
		Humidity:   cur.Humidity,
		WindMPH:    toMPH(cur.WindSpeed),
		WindDir:    WindDirection(cur.WindDirection),
		Condition:  Condition(cur.WeatherCode),
		UVIndex:    cur.UVIndex,
	}
	if cur.Apparent != nil {
		f.FeelsLikeC = *cur.Apparent
	}
	d := body.Daily
	for i, date := range d.Time {
		if i == forecastDays {
			break
		}
		day := DayForecast{Date: date, Condition: "Unknown"}
		if i < len(d.Max) {
			day.HighC = d.Max[i]
		}
		if i < len(d.Min) {
			day.LowC = d.Min[i]
		}
		if i < len(d.WeatherCode) {
			day.Condition = Condition(d.WeatherCode[i])
		}
		if i < len(d.PrecipProb) {
			day.PrecipProb = d.PrecipProb[i]
		}
		if i < len(d.Sunrise) {
			day.Sunrise = clockPart(d.Sunrise[i])
		}
		if i < len(d.Sunset) {
			day.Sunset = clockPart(d.Sunset[i])
		}
		f.Daily = append(f.Daily, day)
	}
	return f, nil
}

func clockPart(iso string) string {
	if _, after, ok := strings.Cut(iso, "T"); ok {
		return after
	}
	return iso
}

// FormatWeather renders forecasts as the weather brief.
func FormatWeather(forecasts []Forecast) string {
	if len(forecasts) == 0 {
		return "No weather data available."
	}
	var b strings.Builder
	b.WriteString("# Weather Forecast\n\n")
	for _, f := range forecasts {
		fmt.Fprintf(&b, "## %s\n\n### Current Conditions\n", f.Location)
		fmt.Fprintf(&b, "- **Temperature:** %.1f°F (%.1f°C)\n", toFahrenheit(f.TempC), f.TempC)
		fmt.Fprintf(&b, "- **Feels Like:** %.1f°F (%.1f°C)\n", toFahrenheit(f.FeelsLikeC), f.FeelsLikeC)
		fmt.Fprintf(&b, "- **Conditions:** %s\n", f.Condition)
		fmt.Fprintf(&b, "- **Humidity:** %d%%\n", f.Humidity)
		fmt.Fprintf(&b, "- **Wind:** %.1f mph from the %s\n", f.WindMPH, f.WindDir)
		if f.UVIndex != nil {
			fmt.Fprintf(&b, "- **UV Index:** %.1f\n", *f.UVIndex)
		}
		b.WriteString("\n")
		if len(f.Daily) > 0 {
			today := f.Daily[0]
			b.WriteString("### Today's Forecast\n")
			fmt.Fprintf(&b, "- **High:** %.1f°F / **Low:** %.1f°F\n", toFahrenheit(today.HighC), toFahrenheit(today.LowC))
			fmt.Fprintf(&b, "- **Conditions:** %s\n", today.Condition)
			fmt.Fprintf(&b, "- **Chance of Precipitation:** %d%%\n", today.PrecipProb)
			fmt.Fprintf(&b, "- **Sunrise:** %s / **Sunset:** %s\n\n", today.Sunrise, today.Sunset)
		}
		if len(f.Daily) > 1 {
			b.WriteString("### Extended Forecast\n")
			end := len(f.Daily)
			if end > 1+extendedDays {
				end = 1 + extendedDays
			}
			for _, day := range f.Daily[1:end] {
				name := day.Date
				if t, err := time.Parse("2006-01-02", day.Date); err == nil {
					name = t.Weekday().String()
				}
				fmt.Fprintf(&b, "- **%s:** High %.1f°F, Low %.1f°F - %s (%d%% precip)\n",
					name, toFahrenheit(day.HighC), toFahrenheit(day.LowC), day.Condition, day.PrecipProb)
			}
			b.WriteString("\n")
		}
		b.WriteString("---\n\n")
	}
	return strings.TrimSpace(b.String())
}
