package domain

// UTF16Len возвращает длину строки в UTF-16 code units — единицах измерения
// смещений Telegram.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// ValidateRanges проверяет инварианты диапазонов форматирования относительно тела:
// границы в пределах текста, диапазоны либо не пересекаются, либо один строго
// вложен в другой.
func ValidateRanges(body string, ranges []FormattingRange) error {
	bodyLen := UTF16Len(body)
	for _, r := range ranges {
		if r.Offset < 0 || r.Length <= 0 {
			return Validationf("диапазон форматирования вне текста: offset=%d length=%d", r.Offset, r.Length)
		}
		if r.Offset+r.Length > bodyLen {
			return Validationf("диапазон форматирования выходит за конец текста: %d+%d > %d", r.Offset, r.Length, bodyLen)
		}
		if r.Kind == RangeTextLink && r.URL == "" {
			return Validationf("диапазон text_link без URL")
		}
	}
	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			if rangesCross(ranges[i], ranges[j]) {
				return Validationf("диапазоны форматирования пересекаются: [%d,%d) и [%d,%d)",
					ranges[i].Offset, ranges[i].Offset+ranges[i].Length,
					ranges[j].Offset, ranges[j].Offset+ranges[j].Length)
			}
		}
	}
	return nil
}

func rangesCross(a, b FormattingRange) bool {
	aEnd := a.Offset + a.Length
	bEnd := b.Offset + b.Length
	if aEnd <= b.Offset || bEnd <= a.Offset {
		return false // непересекающиеся
	}
	if a.Offset <= b.Offset && bEnd <= aEnd {
		return false // b внутри a
	}
	if b.Offset <= a.Offset && aEnd <= bEnd {
		return false // a внутри b
	}
	return true
}
