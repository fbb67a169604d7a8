// Package chart рисует свечной график с индикаторами для отправки
// вместе с сигналом.
package chart

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"

	"github.com/hermesquantum/signalbot/pkg/models"
)

const (
	chartWidth  = 900
	chartHeight = 500
	marginLeft  = 60
	marginRight = 20
	marginTop   = 50
	marginBot   = 40

	// Хвост истории, попадающий на график
	plotCandles = 60
)

// Generator рисует PNG-файлы графиков в заданной директории
type Generator struct {
	dir string
}

// NewGenerator создает генератор графиков
func NewGenerator(dir string) *Generator {
	if dir == "" {
		dir = filepath.Join("static", "charts")
	}
	return &Generator{dir: dir}
}

// Generate рисует график по фрейму и сигналу и возвращает путь к файлу
func (g *Generator) Generate(frame *models.IndicatorFrame, signal *models.Signal) (string, error) {
	if frame.Len() == 0 {
		return "", fmt.Errorf("пустой фрейм для графика")
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("ошибка создания директории графиков: %w", err)
	}

	start := frame.Len() - plotCandles
	if start < 0 {
		start = 0
	}
	candles := frame.Candles[start:]

	minPrice, maxPrice := priceRange(frame, start)
	if maxPrice <= minPrice {
		maxPrice = minPrice + 1e-9
	}
	pad := (maxPrice - minPrice) * 0.05
	minPrice -= pad
	maxPrice += pad

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetRGB(0.08, 0.09, 0.12)
	dc.Clear()

	plotW := float64(chartWidth - marginLeft - marginRight)
	plotH := float64(chartHeight - marginTop - marginBot)
	step := plotW / float64(len(candles))

	x := func(i int) float64 { return marginLeft + (float64(i)+0.5)*step }
	y := func(price float64) float64 {
		return marginTop + plotH*(1-(price-minPrice)/(maxPrice-minPrice))
	}

	drawGrid(dc, minPrice, maxPrice, y)

	// Полосы Боллинджера и EMA50 рисуются под свечами
	drawLine(dc, frame.BBUpper[start:], x, y, 0.4, 0.4, 0.55)
	drawLine(dc, frame.BBLower[start:], x, y, 0.4, 0.4, 0.55)
	drawLine(dc, frame.BBMiddle[start:], x, y, 0.55, 0.55, 0.65)
	drawLine(dc, frame.EMA50[start:], x, y, 0.95, 0.75, 0.2)

	// Свечи
	bodyW := step * 0.6
	for i, c := range candles {
		cx := x(i)
		if c.Bullish() {
			dc.SetRGB(0.15, 0.7, 0.4)
		} else {
			dc.SetRGB(0.85, 0.25, 0.3)
		}

		// Тень
		dc.SetLineWidth(1)
		dc.DrawLine(cx, y(c.High), cx, y(c.Low))
		dc.Stroke()

		// Тело
		top := y(math.Max(c.Open, c.Close))
		bottom := y(math.Min(c.Open, c.Close))
		if bottom-top < 1 {
			bottom = top + 1
		}
		dc.DrawRectangle(cx-bodyW/2, top, bodyW, bottom-top)
		dc.Fill()
	}

	// Отметка направления на последней свече
	last := len(candles) - 1
	lastX := x(last)
	if signal.Direction == models.DirectionBuy {
		dc.SetRGB(0.2, 0.9, 0.5)
		dc.DrawString("BUY ^", lastX-30, y(candles[last].Low)+20)
	} else {
		dc.SetRGB(1, 0.4, 0.4)
		dc.DrawString("SELL v", lastX-30, y(candles[last].High)-10)
	}

	// Заголовок
	dc.SetRGB(0.9, 0.9, 0.9)
	title := fmt.Sprintf("%s %s  %s  conf %.1f%%  win %.1f%%",
		signal.Symbol, signal.Timeframe, signal.Direction,
		signal.Confidence, signal.WinRatePrediction)
	dc.DrawString(title, marginLeft, 30)

	path := filepath.Join(g.dir, fileName(signal))
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("ошибка сохранения графика: %w", err)
	}
	return path, nil
}

func fileName(signal *models.Signal) string {
	symbol := strings.ReplaceAll(signal.Symbol, "/", "_")
	return fmt.Sprintf("signal_%d_%s.png", signal.ID, symbol)
}

// priceRange границы цен по свечам и видимым линиям индикаторов
func priceRange(frame *models.IndicatorFrame, start int) (float64, float64) {
	minPrice := math.Inf(1)
	maxPrice := math.Inf(-1)

	for _, c := range frame.Candles[start:] {
		minPrice = math.Min(minPrice, c.Low)
		maxPrice = math.Max(maxPrice, c.High)
	}
	for _, series := range [][]float64{frame.BBUpper[start:], frame.BBLower[start:]} {
		for _, v := range series {
			if math.IsNaN(v) {
				continue
			}
			minPrice = math.Min(minPrice, v)
			maxPrice = math.Max(maxPrice, v)
		}
	}
	return minPrice, maxPrice
}

func drawGrid(dc *gg.Context, minPrice, maxPrice float64, y func(float64) float64) {
	dc.SetRGB(0.2, 0.21, 0.25)
	dc.SetLineWidth(0.5)

	for i := 0; i <= 5; i++ {
		price := minPrice + (maxPrice-minPrice)*float64(i)/5
		py := y(price)
		dc.DrawLine(marginLeft, py, chartWidth-marginRight, py)
		dc.Stroke()

		dc.SetRGB(0.6, 0.6, 0.65)
		dc.DrawString(fmt.Sprintf("%.5f", price), 4, py+4)
		dc.SetRGB(0.2, 0.21, 0.25)
	}
}

// drawLine рисует линию индикатора, пропуская NaN-разогрев
func drawLine(dc *gg.Context, values []float64, x func(int) float64, y func(float64) float64, r, g, b float64) {
	dc.SetRGB(r, g, b)
	dc.SetLineWidth(1.2)

	started := false
	for i, v := range values {
		if math.IsNaN(v) {
			if started {
				dc.Stroke()
				started = false
			}
			continue
		}
		if !started {
			dc.MoveTo(x(i), y(v))
			started = true
			continue
		}
		dc.LineTo(x(i), y(v))
	}
	if started {
		dc.Stroke()
	}
}
