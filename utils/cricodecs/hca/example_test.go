package hca_test

import (
	"bytes"
	"fmt"

	"haruki-hca/utils/cricodecs/hca"
	"haruki-hca/utils/cricodecs/hca/hcatest"
)

func ExampleHCADecoder_DecodeToPCM16() {
	stream := hcatest.Stream(hcatest.Options{Channels: 2, Frames: 4, Delay: 128})

	decoder, err := hca.NewHCADecoderFromReader(bytes.NewReader(stream))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer decoder.Close()

	info := decoder.Info()
	fmt.Printf("Channels: %d\n", info.ChannelCount)
	fmt.Printf("Sample Rate: %d Hz\n", info.SamplingRate)
	fmt.Printf("Block Count: %d\n", info.BlockCount)
	fmt.Printf("Encrypted: %v\n", info.EncryptionEnabled)

	samples, err := decoder.DecodeToPCM16()
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("Samples per channel: %d\n", len(samples)/int(info.ChannelCount))
	// Output:
	// Channels: 2
	// Sample Rate: 44100 Hz
	// Block Count: 4
	// Encrypted: false
	// Samples per channel: 3968
}
