// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

// Package dtd loads the Describable Textures Dataset (DTD) for image classification.
//
// The dataset root is expected to have the layout of the DTD release:
//
//	<dataset_root>/images/<class_name>/<image files>
//	<dataset_root>/labels/train<split>.txt
//	<dataset_root>/labels/val<split>.txt
//	<dataset_root>/labels/test<split>.txt
//
// Each manifest lists one image per line, relative to the images directory, e.g.
// "banded/banded_0001.jpg": its first path element is the class name.
//
// Class ids are assigned by sorting the class directory names. Training uses the train and val
// manifests with random augmentation (random resized crop, flips and, optionally, PCA lighting
// noise); evaluation uses the test manifest with a deterministic resize and center crop.
// Everything is indexed up-front, and a missing image or unknown class is an error.
//
// Example:
//
//	cfg := dtd.DefaultConfig()
//	cfg.DatasetPath = "~/work/dtd"
//	loader, err := dtd.NewLoader(cfg)
//	if err != nil {
//		return err
//	}
//	defer loader.Close()
//	classNames, trainDS, evalDS := loader.GetLoader()
//
// trainDS and evalDS implement train.Dataset: each Yield returns the images shaped
// `[batch_size, crop_size, crop_size, 3]` and the Int32 labels shaped `[batch_size]`.
package dtd
