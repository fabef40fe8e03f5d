package config

import (
	"encoding/xml"
	"fmt"
	"os"
)

var MainRouter string
var Download string
var TileURL string
var OverpassURL string
var TextureSize int
var DefaultHeight float64
var MainConfig Config

type Config struct {
	XMLName         xml.Name `xml:"config"`
	MainRouter      string   `xml:"MainRouter"`
	Download        string   `xml:"download"`
	TileURL         string   `xml:"TileUrl"`
	OverpassURL     string   `xml:"OverpassUrl"`
	TextureSize     int      `xml:"TextureSize"`
	DefaultHeight   float64  `xml:"DefaultHeight"`
	TileWorkers     int      `xml:"TileWorkers"`
	BuildingWorkers int      `xml:"BuildingWorkers"`
	TileTimeout     int      `xml:"TileTimeout"`     // 秒
	OverpassTimeout int      `xml:"OverpassTimeout"` // 秒
	MaxAreaDeg2     float64  `xml:"MaxArea"`         // 平方度
}

// QualityPolicy 质量档位参数表
// 数值为经验常量，没有推导公式，只要求面积阈值与容差随质量档位单调
type QualityPolicy struct {
	SimplifyTolerance float64 // 米
	MinArea           float64 // 平方米
}

// Quality 质量档位配置表
var Quality = map[string]QualityPolicy{
	"low":    {SimplifyTolerance: 2.0, MinArea: 25.0},
	"medium": {SimplifyTolerance: 1.0, MinArea: 10.0},
	"high":   {SimplifyTolerance: 0.3, MinArea: 5.0},
}

// QualityOf 取质量档位参数，未知档位按medium处理
func QualityOf(name string) QualityPolicy {
	if p, ok := Quality[name]; ok {
		return p
	}
	return Quality["medium"]
}

func init() {
	// 默认值保证没有config.xml也能直接运行
	MainConfig = Config{
		MainRouter:      ":8080",
		Download:        "./downloads",
		TileURL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		OverpassURL:     "http://overpass-api.de/api/interpreter",
		TextureSize:     512,
		DefaultHeight:   10.0,
		TileWorkers:     8,
		BuildingWorkers: 4,
		TileTimeout:     10,
		OverpassTimeout: 60,
		MaxAreaDeg2:     0.01,
	}

	xmlFile, err := os.Open("config.xml")
	if err != nil {
		fmt.Println("Error  opening  file:", err)
	} else {
		defer xmlFile.Close()
		xmlDecoder := xml.NewDecoder(xmlFile)
		err = xmlDecoder.Decode(&MainConfig)
		if err != nil {
			fmt.Println("Error  decoding  XML:", err)
		}
	}

	MainRouter = MainConfig.MainRouter
	Download = MainConfig.Download
	TileURL = MainConfig.TileURL
	OverpassURL = MainConfig.OverpassURL
	TextureSize = MainConfig.TextureSize
	DefaultHeight = MainConfig.DefaultHeight
}
