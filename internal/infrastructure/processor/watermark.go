package processor

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const watermarkMargin = 8

// watermark stamps text into the bottom-right corner of dst, scaling the
// 7x13 bitmap font with the image width.
func watermark(dst *image.NRGBA, text string, opacity int) {
	face := basicfont.Face7x13
	bounds := dst.Bounds()

	scale := bounds.Dx() / 400
	if scale < 1 {
		scale = 1
	}

	mask := image.NewAlpha(image.Rect(0, 0, font.MeasureString(face, text).Ceil(), face.Height))
	drawer := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(face.Ascent)},
	}
	drawer.DrawString(text)

	originX := bounds.Max.X - mask.Bounds().Dx()*scale - watermarkMargin
	originY := bounds.Max.Y - mask.Bounds().Dy()*scale - watermarkMargin
	alpha := float64(opacity) / 100

	for sy := 0; sy < mask.Bounds().Dy(); sy++ {
		for sx := 0; sx < mask.Bounds().Dx(); sx++ {
			coverage := float64(mask.AlphaAt(sx, sy).A) / 255
			if coverage == 0 {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					px, py := originX+sx*scale+dx, originY+sy*scale+dy
					if !(image.Point{X: px, Y: py}).In(bounds) {
						continue
					}
					blend(dst, px, py, color.White, coverage*alpha)
				}
			}
		}
	}
}

func blend(dst *image.NRGBA, x, y int, c color.Color, a float64) {
	src := color.NRGBAModel.Convert(c).(color.NRGBA)
	cur := dst.NRGBAAt(x, y)
	mix := func(s, d uint8) uint8 {
		return uint8(float64(s)*a + float64(d)*(1-a) + 0.5)
	}
	dst.SetNRGBA(x, y, color.NRGBA{
		R: mix(src.R, cur.R),
		G: mix(src.G, cur.G),
		B: mix(src.B, cur.B),
		A: cur.A,
	})
}
