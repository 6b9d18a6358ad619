package hca

import "testing"

func TestNextRandom(t *testing.T) {
	t.Parallel()

	want := []uint32{0x0029E2C0, 0xC823F683, 0x18BE873A, 0xE7847115, 0xCAE1DF84}

	r := uint32(hcaDefaultRandom)
	for i, w := range want {
		r = nextRandom(r)
		if r != w {
			t.Fatalf("step %d = 0x%08X, want 0x%08X", i+1, r, w)
		}
	}
}

func noiseChannel() *stChannel {
	ch := &stChannel{channelType: discrete, codedCount: 16}
	ch.noises[0] = 5
	ch.noiseCount = 1
	ch.noises[hcaSamplesPerSubframe-1] = 10
	ch.validCount = 1
	ch.scaleFactors[5] = 20
	ch.scaleFactors[10] = 20
	ch.spectra[10] = 1
	return ch
}

func TestReconstructNoise(t *testing.T) {
	t.Parallel()

	ch := noiseChannel()
	random := uint32(hcaDefaultRandom)

	reconstructNoise(ch, 0, 0, &random)

	if want := scaleConversionTable[62]; ch.spectra[5] != want {
		t.Errorf("noise coefficient = %v, want %v", ch.spectra[5], want)
	}
	if want := nextRandom(hcaDefaultRandom); random != want {
		t.Errorf("random = 0x%08X, want 0x%08X", random, want)
	}
}

func TestReconstructNoise_Skipped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		minResolution uint
		msStereo      uint
		channelType   channelType
		validCount    uint
	}{
		{"minimum resolution above zero", 1, 0, discrete, 1},
		{"mid/side primary", 0, 1, stereoPrimary, 1},
		{"no valid coefficients", 0, 0, discrete, 0},
	}

	for _, tt := range tests {
		ch := noiseChannel()
		ch.channelType = tt.channelType
		ch.validCount = tt.validCount
		random := uint32(hcaDefaultRandom)

		reconstructNoise(ch, tt.minResolution, tt.msStereo, &random)

		if ch.spectra[5] != 0 {
			t.Errorf("%s: noise coefficient = %v, want 0", tt.name, ch.spectra[5])
		}
		if random != hcaDefaultRandom {
			t.Errorf("%s: random advanced to 0x%08X", tt.name, random)
		}
	}
}

// hfrChannel has eight coded bands holding 1..8 with scale factor 40 and both
// HFR group scales set to 20.
func hfrChannel() *stChannel {
	ch := &stChannel{channelType: discrete}
	for i := 0; i < 8; i++ {
		ch.spectra[i] = float32(i + 1)
		ch.scaleFactors[i] = 40
	}
	ch.scaleFactors[126] = 20
	ch.scaleFactors[127] = 20
	return ch
}

func TestReconstructHighFrequency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version uint
		// source value copied into bands 8..15; the top band is always cleared
		source [8]float32
	}{
		{
			name:    "v2 mirrors downwards",
			version: hcaVersion200,
			source:  [8]float32{8, 7, 6, 5, 4, 3, 2, 0},
		},
		{
			name:    "v3 holds the source band after half the groups",
			version: hcaVersion300,
			source:  [8]float32{8, 7, 6, 5, 4, 4, 4, 0},
		},
	}

	for _, tt := range tests {
		ch := hfrChannel()
		reconstructHighFrequency(ch, 2, 4, 0, 8, 16, tt.version)

		for i := 0; i < 8; i++ {
			if ch.spectra[i] != float32(i+1) {
				t.Errorf("%s: coded band %d changed to %v", tt.name, i, ch.spectra[i])
			}
		}
		for i, src := range tt.source {
			want := scaleConversionTable[20] * src
			if ch.spectra[8+i] != want {
				t.Errorf("%s: spectra[%d] = %v, want %v", tt.name, 8+i, ch.spectra[8+i], want)
			}
		}
	}
}

func TestReconstructHighFrequency_ScalesByGroup(t *testing.T) {
	t.Parallel()

	ch := hfrChannel()
	ch.scaleFactors[126] = 11
	ch.scaleFactors[127] = 0

	reconstructHighFrequency(ch, 2, 4, 0, 8, 16, hcaVersion200)

	// the group scale alone picks the factor, whatever the source band's scale factor is
	if want := scaleConversionTable[11] * 8; ch.spectra[8] != want {
		t.Errorf("spectra[8] = %v, want %v", ch.spectra[8], want)
	}
	if want := scaleConversionTable[11] * 5; ch.spectra[11] != want {
		t.Errorf("spectra[11] = %v, want %v", ch.spectra[11], want)
	}
	if want := scaleConversionTable[0] * 4; ch.spectra[12] != want {
		t.Errorf("spectra[12] = %v, want %v", ch.spectra[12], want)
	}
}

func TestReconstructHighFrequency_SecondarySkipped(t *testing.T) {
	t.Parallel()

	ch := hfrChannel()
	ch.channelType = stereoSecondary

	reconstructHighFrequency(ch, 2, 4, 0, 8, 16, hcaVersion200)

	for i := 8; i < 16; i++ {
		if ch.spectra[i] != 0 {
			t.Fatalf("spectra[%d] = %v, want 0", i, ch.spectra[i])
		}
	}
}

func stereoPair(intensity byte) []stChannel {
	pair := make([]stChannel, 2)
	pair[0].channelType = stereoPrimary
	pair[1].channelType = stereoSecondary
	for i := 0; i < 8; i++ {
		pair[0].spectra[i] = 1
		pair[1].spectra[i] = 0.5
	}
	pair[0].spectra[8] = 1
	pair[0].spectra[9] = -2
	pair[1].spectra[8] = 0.25
	pair[1].spectra[9] = -0.5
	pair[1].intensity[3] = intensity
	return pair
}

func TestApplyIntensityStereo(t *testing.T) {
	t.Parallel()

	pair := stereoPair(4)
	applyIntensityStereo(pair, 3, 8, 10)

	ratio := intensityRatioTable[4]
	tests := []struct {
		band         int
		wantL, wantR float32
	}{
		{8, 1 * ratio, 0.25 * (2 - ratio)},
		{9, -2 * ratio, -0.5 * (2 - ratio)},
	}
	for _, tt := range tests {
		if pair[0].spectra[tt.band] != tt.wantL || pair[1].spectra[tt.band] != tt.wantR {
			t.Errorf("band %d = %v/%v, want %v/%v", tt.band, pair[0].spectra[tt.band], pair[1].spectra[tt.band], tt.wantL, tt.wantR)
		}
	}
	if pair[0].spectra[0] != 1 || pair[1].spectra[0] != 0.5 {
		t.Errorf("base band changed to %v/%v", pair[0].spectra[0], pair[1].spectra[0])
	}
}

func TestApplyIntensityStereo_FullLeft(t *testing.T) {
	t.Parallel()

	pair := stereoPair(0)
	applyIntensityStereo(pair, 3, 8, 10)

	ratio := intensityRatioTable[0]
	if pair[0].spectra[8] != ratio || pair[1].spectra[8] != 0.25*(2-ratio) {
		t.Errorf("band 8 = %v/%v, want %v/%v", pair[0].spectra[8], pair[1].spectra[8], ratio, 0.25*(2-ratio))
	}
}

func TestApplyIntensityStereo_SilentSecondaryStaysSilent(t *testing.T) {
	t.Parallel()

	pair := stereoPair(7)
	pair[1].spectra[8] = 0
	applyIntensityStereo(pair, 3, 8, 10)

	if pair[1].spectra[8] != 0 {
		t.Errorf("secondary band 8 = %v, want 0", pair[1].spectra[8])
	}
}

func TestApplyIntensityStereo_DiscreteIgnored(t *testing.T) {
	t.Parallel()

	pair := stereoPair(4)
	pair[0].channelType = discrete
	applyIntensityStereo(pair, 3, 8, 10)

	if pair[0].spectra[8] != 1 || pair[1].spectra[8] != 0.25 {
		t.Errorf("band 8 = %v/%v, want untouched 1/0.25", pair[0].spectra[8], pair[1].spectra[8])
	}
}

func TestApplyMsStereo(t *testing.T) {
	t.Parallel()

	pair := stereoPair(7)
	pair[1].spectra[8] = 0.5
	applyMsStereo(pair, 0, 8, 10)

	wantL := (float32(1) + 0.5) * msStereoRatio
	wantR := (float32(1) - 0.5) * msStereoRatio
	if pair[0].spectra[8] != wantL || pair[1].spectra[8] != wantR {
		t.Errorf("band 8 = %v/%v, want %v/%v", pair[0].spectra[8], pair[1].spectra[8], wantL, wantR)
	}
	if pair[0].spectra[7] != 1 || pair[1].spectra[7] != 0.5 {
		t.Errorf("base band changed to %v/%v", pair[0].spectra[7], pair[1].spectra[7])
	}

	flagged := stereoPair(7)
	applyMsStereo(flagged, 1, 8, 10)
	if flagged[0].spectra[8] != 1 {
		t.Errorf("band 8 with flag set = %v, want untouched 1", flagged[0].spectra[8])
	}
}
